package client

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Dispatcher posts notifications to a relay node's signed dispatch
// endpoint. Business-logic services (appointment approval, prescription
// updates) hold the shared secret and use this instead of a user token.
type Dispatcher struct {
	// URL of the dispatch endpoint, e.g. http://relay:8000/internal/dispatch.
	URL    string
	Secret string

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
}

func md5hex(s string) string {
	m := md5.New()
	m.Write([]byte(s))
	return hex.EncodeToString(m.Sum(nil))
}

// Dispatch signs and posts one notification, returning its assigned id.
func (d *Dispatcher) Dispatch(ctx context.Context, userID, title, body, category string) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"userId":   userID,
		"title":    title,
		"body":     body,
		"category": category,
	})
	if err != nil {
		return "", err
	}

	u, err := url.Parse(d.URL)
	if err != nil {
		return "", err
	}
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	params := url.Values{}
	params.Set("sign", md5hex(d.Secret+string(payload)+ts))
	params.Set("ts", ts)
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	hc := d.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result struct {
		ID    string `json:"id"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("dispatch failed: %s", result.Error)
	}
	return result.ID, nil
}
