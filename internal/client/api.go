package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/semp-project/semp/internal/transport"
)

// doSigned sends a request signed with the configured key and decodes the
// JSON response into out when out is non-nil.
func doSigned(method, url string, body []byte, out any) error {
	key, err := cfg.SigningKey()
	if err != nil {
		return err
	}

	req, err := transport.NewLocalRequest(context.Background(), method, url, body, key)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return decodeResponse(resp, out)
}

// doPlain sends an unsigned request for the public endpoints.
func doPlain(method, url string, out any) error {
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var remoteErr struct {
			Error       string `json:"error"`
			Description string `json:"description"`
		}
		data, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(data, &remoteErr) == nil && remoteErr.Error != "" {
			return fmt.Errorf("server: %s (%s)", remoteErr.Description, remoteErr.Error)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
