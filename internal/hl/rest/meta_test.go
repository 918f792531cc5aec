package rest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestSpotAssetID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"tokens":[
				{"name":"USDC","index":0},
				{"name":"BTC","index":3}
			],
			"universe":[
				{"name":"@100","tokens":[7,0],"index":100},
				{"name":"@142","tokens":[3,0],"index":142}
			]
		}`))
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second, zap.NewNop())
	asset, err := c.SpotAssetID(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if asset != 10142 {
		t.Fatalf("expected asset 10142, got %d", asset)
	}

	if _, err := c.SpotAssetID(context.Background(), "DOGE"); err == nil {
		t.Fatalf("unknown token must error")
	}
}
