package config

// ServerConfig defines the HTTP listener settings.
type ServerConfig struct {
	// Addr is the listen address of the API and websocket server.
	Addr string `json:"addr"`
}

// SetDefaults applies sane defaults.
func (c *ServerConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
}
