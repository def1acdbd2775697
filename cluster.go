package main

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
)

// clusterPublish hands a directed frame to peer nodes so a user
// connected elsewhere still receives the live push.
func (n *Node) clusterPublish(target string, payload []byte) {
	if n.rdb == nil {
		return
	}
	log := zap.S().With("method", "clusterPublish")
	d, err := json.Marshal(ClusterFrame{
		NodeName:     DefConfig.Redis.Name,
		TargetUserID: target,
		Payload:      payload,
	})
	if err != nil {
		log.Error("json:", err.Error())
		return
	}
	if err := n.rdb.Publish(context.Background(), DefConfig.Redis.Channel, string(d)).Err(); err != nil {
		log.Error("redis publish:", err.Error())
	}
}

func (n *Node) clusterRev() {
	log := zap.S().With("method", "clusterRev")
	defer func() {
		if err := recover(); err != nil {
			log.Error("ClusterRev err:", err)
		}
		if !n.stopped.Load() {
			go n.clusterRev()
		}
	}()
	n.rpub = n.rdb.Subscribe(context.Background(), DefConfig.Redis.Channel)

	cf := ClusterFrame{}
	for msg := range n.rpub.Channel() {
		if err := json.Unmarshal([]byte(msg.Payload), &cf); err != nil {
			log.Errorf("ClusterRev json error:%+v,%s", msg, err)
			continue
		}
		if cf.NodeName == DefConfig.Redis.Name {
			continue
		}
		log.Info("ClusterRev:", cf.NodeName, " -> ", cf.TargetUserID)
		n.deliverLocal(cf.TargetUserID, cf.Payload)
	}
}
