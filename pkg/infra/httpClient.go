package infra

import (
	"time"

	"github.com/imroc/req/v3"
)

func ProvideHttpClient() *req.Client {
	return req.C(). // Use C() to create a client and set with chainable client settings.
			// Timeout of all requests.
			SetTimeout(10 * time.Second).
			// Enable retry and set the maximum retry count.
			SetCommonRetryCount(3).
			SetCommonRetryFixedInterval(2 * time.Second)
}
