// Copyright 2026 The TrustGate Authors
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

package idp

import "sync"

// Adapters caches one RealmClient per realm id so hot realms keep a
// long-lived adapter. Duplicate construction under concurrency is
// harmless; the extra instance is simply discarded.
type Adapters struct {
	client *Client

	mu       sync.RWMutex
	byRealID map[string]*RealmClient
}

// NewAdapters creates an empty adapter cache
func NewAdapters(client *Client) *Adapters {
	return &Adapters{
		client:   client,
		byRealID: make(map[string]*RealmClient),
	}
}

// For returns the adapter for a realm id, constructing it on first use
func (a *Adapters) For(realmID, realmName, clientID, clientSecret string) *RealmClient {
	a.mu.RLock()
	rc, ok := a.byRealID[realmID]
	a.mu.RUnlock()
	if ok {
		return rc
	}

	rc = a.client.NewRealmClient(realmName, clientID, clientSecret)

	a.mu.Lock()
	defer a.mu.Unlock()
	if existing, ok := a.byRealID[realmID]; ok {
		return existing
	}
	a.byRealID[realmID] = rc
	return rc
}

// Drop removes a realm's adapter, forcing reconstruction on next use.
// Called when realm settings change.
func (a *Adapters) Drop(realmID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.byRealID, realmID)
}

// Close drops every cached adapter
func (a *Adapters) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.byRealID = make(map[string]*RealmClient)
}
