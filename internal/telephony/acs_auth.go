package telephony

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"time"
)

// signRequest adds the HMAC-SHA256 headers expected by the Communication
// Services data plane. body must be the exact bytes sent.
func signRequest(r *http.Request, body []byte, key []byte, now time.Time) {
	sum := sha256.Sum256(body)
	contentHash := base64.StdEncoding.EncodeToString(sum[:])
	date := now.UTC().Format(http.TimeFormat)

	host := r.URL.Host
	pathAndQuery := r.URL.Path
	if r.URL.RawQuery != "" {
		pathAndQuery += "?" + r.URL.RawQuery
	}

	toSign := r.Method + "\n" + pathAndQuery + "\n" + date + ";" + host + ";" + contentHash

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(toSign))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	r.Header.Set("x-ms-date", date)
	r.Header.Set("x-ms-content-sha256", contentHash)
	r.Header.Set("Authorization", "HMAC-SHA256 SignedHeaders=x-ms-date;host;x-ms-content-sha256&Signature="+signature)
}
