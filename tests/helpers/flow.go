package helpers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// NewFlowServer fakes the Flow access node REST API. Accounts listed in
// balances (address without 0x -> base units) resolve; any other address is 404.
func NewFlowServer(t *testing.T, balances map[string]string) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		addr := strings.TrimPrefix(r.URL.Path, "/v1/accounts/")
		w.Header().Set("Content-Type", "application/json")
		units, ok := balances[addr]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprintf(w, `{"code":404,"message":"account %s not found"}`, addr)
			return
		}
		fmt.Fprintf(w, `{"address":%q,"balance":%q}`, addr, units)
	}))
	t.Cleanup(server.Close)

	return server
}
