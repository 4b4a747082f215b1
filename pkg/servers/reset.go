package servers

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// expungeEverything implements the $expunge-everything reset call used by
// HAPI-like servers, grounded on the original orchestrator's
// test_framework/post_org.rs::expunge_everything.
func expungeEverything(client *http.Client, baseURL string) error {
	url := fmt.Sprintf("%s$expunge?expungeEverything=true", baseURL)
	req, err := http.NewRequest(http.MethodPost, url, http.NoBody)
	if err != nil {
		return errors.Wrap(err, "building $expunge request")
	}

	resp, err := client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "POST %s failed", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("POST %s failed with status %d", url, resp.StatusCode)
	}
	return nil
}
