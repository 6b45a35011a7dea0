// Copyright 2025 The Rivaas Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// upstreamTransport sends proxied requests to the upstream and reports its
// readiness. The minifying middleware wraps it and forwards Ready to it.
type upstreamTransport struct {
	http.RoundTripper
	healthURL string
}

func newUpstreamTransport(upstream *url.URL, healthPath string) *upstreamTransport {
	t := &upstreamTransport{RoundTripper: http.DefaultTransport.(*http.Transport).Clone()}
	if healthPath != "" {
		t.healthURL = upstream.JoinPath(healthPath).String()
	}
	return t
}

// Ready probes the upstream health endpoint. Without one the upstream is
// assumed ready.
func (t *upstreamTransport) Ready(ctx context.Context) error {
	if t.healthURL == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.healthURL, nil)
	if err != nil {
		return err
	}
	resp, err := t.RoundTrip(req)
	if err != nil {
		return fmt.Errorf("upstream not reachable: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("upstream not ready: %s", resp.Status)
	}
	return nil
}
