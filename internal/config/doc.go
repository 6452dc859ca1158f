// Package config provides configuration parsing for obsidium servers.
//
// The configuration is stored in obsidium.json next to the server's data.
// This package handles loading, saving, and validating configuration, and
// converting it to a server.Config.
//
// # Configuration File Structure
//
//	{
//	  "server": {
//	    "address": ":25565",
//	    "motd": "An Obsidium server",
//	    "max_players": 20,
//	    "online_mode": false,
//	    "compression_threshold": 256,
//	    "view_distance": 2
//	  },
//	  "admin": {"address": "127.0.0.1:25580"},
//	  "websocket": {"address": ":8080", "path": "/ws"},
//	  "quic": {"address": ":25565"},
//	  "world": {"backend": "sqlite", "path": "world.db"},
//	  "bans": {"backend": "sqlite", "path": "bans.db"},
//	  "log": {"level": "info", "format": "json"},
//	  "timeouts": {"keep_alive_interval": "15s", "keep_alive_timeout": "30s"}
//	}
//
// Relative paths resolve against the directory of the file.
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	sc, err := cfg.ToServerConfig()
package config
