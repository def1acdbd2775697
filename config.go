package main

var DefConfig Config

type Config struct {
	Host           string `json:"host"`
	OpsHost        string `json:"ops_host" yaml:"ops_host" mapstructure:"ops_host"`
	JWTSecret      string `json:"jwt_secret" yaml:"jwt_secret" mapstructure:"jwt_secret"`
	DispatchSecret string `json:"dispatch_secret" yaml:"dispatch_secret" mapstructure:"dispatch_secret"`
	DB             string `json:"db"`
	DBLog          bool   `json:"dblog"`

	Redis  RedisConfig  `json:"redis" yaml:"redis" mapstructure:"redis"`
	Client ClientConfig `json:"client" yaml:"client" mapstructure:"client"`
}

type RedisConfig struct {
	Enable  bool   `json:"enable" yaml:"enable" mapstructure:"enable"`
	Host    string `json:"host" yaml:"host" mapstructure:"host"`
	Name    string `json:"name" yaml:"name" mapstructure:"name"`
	Channel string `json:"channel" yaml:"channel" mapstructure:"channel"`
}

type ClientConfig struct {
	ReadMessageSizeLimit int64 `json:"read_message_size_limit" yaml:"read_message_size_limit" mapstructure:"read_message_size_limit"`
	SendBuffer           int   `json:"send_buffer" yaml:"send_buffer" mapstructure:"send_buffer"`
	Compression          bool  `json:"compression" yaml:"compression" mapstructure:"compression"`
	CompressionLevel     int   `json:"compression_level" yaml:"compression_level" mapstructure:"compression_level"`
	ReadBufferSize       int   `json:"read_buffer_size" yaml:"read_buffer_size" mapstructure:"read_buffer_size"`
	WriteBufferSize      int   `json:"write_buffer_size" yaml:"write_buffer_size" mapstructure:"write_buffer_size"`
}

func (c ClientConfig) sendBuffer() int {
	if c.SendBuffer <= 0 {
		return 16
	}
	return c.SendBuffer
}
