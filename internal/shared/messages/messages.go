package messages

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

type MessageText struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type Messages struct {
	SyncComplete    MessageText `json:"sync_complete"`
	ConsentApproved MessageText `json:"consent_approved"`
	ConsentRejected MessageText `json:"consent_rejected"`
	ConsentExpired  MessageText `json:"consent_expired"`
}

var (
	loaded   Messages
	loadOnce sync.Once
	loadErr  error
)

// Load reads the notifications JSON file and caches the result.
// Safe to call from multiple goroutines.
func Load(path string) (*Messages, error) {
	loadOnce.Do(func() {
		data, err := os.ReadFile(path)
		if err != nil {
			loadErr = fmt.Errorf("failed to read messages file: %w", err)
			return
		}
		if err := json.Unmarshal(data, &loaded); err != nil {
			loadErr = fmt.Errorf("failed to parse messages file: %w", err)
		}
	})
	if loadErr != nil {
		return nil, loadErr
	}
	return &loaded, nil
}

// Default returns built-in texts for deployments without a messages file.
func Default() *Messages {
	return &Messages{
		SyncComplete: MessageText{
			Title: "Accounts updated",
			Body:  "Your bank accounts finished syncing.",
		},
		ConsentApproved: MessageText{
			Title: "Bank connected",
			Body:  "Your bank approved access to your accounts.",
		},
		ConsentRejected: MessageText{
			Title: "Bank connection rejected",
			Body:  "Your bank declined the access request.",
		},
		ConsentExpired: MessageText{
			Title: "Bank connection expired",
			Body:  "Access to your bank expired. Reconnect to keep syncing.",
		},
	}
}
