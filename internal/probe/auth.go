package probe

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
)

type authConfig struct {
	APIKey      string `json:"api_key"`
	Key         string `json:"key"`
	Header      string `json:"header"`
	QueryParam  string `json:"query_param"`
	Token       string `json:"token"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	AccessToken string `json:"access_token"`
}

// injectAuth decorates the request with the integration's credentials.
// Callers treat a returned error as "proceed unauthenticated".
func injectAuth(req *Request, authType string, rawConfig []byte) error {
	if authType == "" || authType == "none" {
		return nil
	}
	if len(rawConfig) == 0 {
		return fmt.Errorf("auth type %q without config", authType)
	}
	var cfg authConfig
	if err := json.Unmarshal(rawConfig, &cfg); err != nil {
		return err
	}
	switch authType {
	case "api_key":
		key := cfg.APIKey
		if key == "" {
			key = cfg.Key
		}
		if key == "" {
			return fmt.Errorf("api_key auth without key")
		}
		if cfg.QueryParam != "" {
			parsed, err := url.Parse(req.URL)
			if err != nil {
				return err
			}
			query := parsed.Query()
			query.Set(cfg.QueryParam, key)
			parsed.RawQuery = query.Encode()
			req.URL = parsed.String()
			return nil
		}
		header := cfg.Header
		if header == "" {
			header = "X-API-Key"
		}
		req.Headers[header] = key
		return nil
	case "bearer":
		if cfg.Token == "" {
			return fmt.Errorf("bearer auth without token")
		}
		req.Headers["Authorization"] = "Bearer " + cfg.Token
		return nil
	case "basic":
		if cfg.Username == "" {
			return fmt.Errorf("basic auth without username")
		}
		encoded := base64.StdEncoding.EncodeToString([]byte(cfg.Username + ":" + cfg.Password))
		req.Headers["Authorization"] = "Basic " + encoded
		return nil
	case "oauth":
		if cfg.AccessToken == "" {
			return fmt.Errorf("oauth auth without access token")
		}
		req.Headers["Authorization"] = "Bearer " + cfg.AccessToken
		return nil
	default:
		return fmt.Errorf("unsupported auth type %q", authType)
	}
}
