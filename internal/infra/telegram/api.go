package telegram

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"film_department_bot/internal/domain/delivery"
)

// apiResponse is the Bot API envelope. telebot's own error mapping drops the
// error code for descriptions it does not know, so we classify from the raw body.
type apiResponse struct {
	OK          bool            `json:"ok"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
	Parameters  *struct {
		RetryAfter      int   `json:"retry_after"`
		MigrateToChatID int64 `json:"migrate_to_chat_id"`
	} `json:"parameters"`
}

// decodeResponse maps a telebot Raw result onto the delivery error taxonomy:
// no body means the request never completed (transient); 429 is rate limited;
// 5xx is transient; any other API error is a permanent rejection.
func decodeResponse(data []byte, rawErr error) (*apiResponse, error) {
	if len(data) == 0 {
		if rawErr == nil {
			rawErr = fmt.Errorf("empty response")
		}
		return nil, delivery.Transient(rawErr)
	}

	var resp apiResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		// Proxies in front of the API answer outages with HTML.
		return nil, delivery.Transient(fmt.Errorf("decode API response: %w", err))
	}
	if resp.OK {
		return &resp, nil
	}

	apiErr := fmt.Errorf("telegram: %s (%d)", resp.Description, resp.ErrorCode)
	switch {
	case resp.ErrorCode == http.StatusTooManyRequests:
		retryAfter := time.Second
		if resp.Parameters != nil && resp.Parameters.RetryAfter > 0 {
			retryAfter = time.Duration(resp.Parameters.RetryAfter) * time.Second
		}
		return nil, delivery.RateLimited(retryAfter, apiErr)
	case resp.ErrorCode >= http.StatusInternalServerError:
		return nil, delivery.Transient(apiErr)
	default:
		return nil, delivery.Permanent(apiErr)
	}
}
