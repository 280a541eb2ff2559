// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/warden/lib/callctx"
	"github.com/bureau-foundation/warden/lib/clock"
	"github.com/bureau-foundation/warden/lib/objectstore"
	"github.com/bureau-foundation/warden/lib/operation"
	"github.com/bureau-foundation/warden/lib/policy"
	"github.com/bureau-foundation/warden/lib/router"
	"github.com/bureau-foundation/warden/lib/toolmap"
	"github.com/bureau-foundation/warden/messaging"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// peers is a provider and a consumer connected by one Bus and sharing
// one object store.
type peers struct {
	bus     *messaging.Bus
	clock   *clock.FakeClock
	objects *objectstore.MemoryStore

	supplies *SupplyManager
	server   *Server
	engine   *policy.Engine

	demands       *DemandManager
	client        *Client
	consumerStore *MemoryStore
	providerStore *MemoryStore
}

func newPeers(t *testing.T, rules ...policy.Rule) *peers {
	t.Helper()
	ctx := context.Background()
	p := &peers{
		bus:           messaging.NewBus(),
		clock:         clock.Fake(epoch),
		objects:       objectstore.NewMemoryStore(objectstore.CompressionNone),
		consumerStore: NewMemoryStore(),
		providerStore: NewMemoryStore(),
	}
	logger := discardLogger()

	var err error
	p.supplies, err = NewSupplyManager(ManagerConfig{
		Identity: "provider", Store: p.providerStore, Channel: p.bus, Clock: p.clock, Logger: logger,
	})
	if err != nil {
		t.Fatalf("NewSupplyManager: %v", err)
	}

	registry := operation.NewRegistry()
	registry.Register("plan", "list", "List plans", func(ctx context.Context, params map[string]any) (any, error) {
		return map[string]any{"plans": []any{"alpha", "beta"}, "owner": params["owner"]}, nil
	})
	registry.Register("plan", "delete", "Delete a plan", func(ctx context.Context, params map[string]any) (any, error) {
		return nil, operation.NotFound("no such plan")
	})
	tools, err := toolmap.FromMethods(registry.Methods(), nil)
	if err != nil {
		t.Fatalf("FromMethods: %v", err)
	}

	p.engine, err = policy.NewEngine(ctx, policy.Config{Clock: p.clock, Logger: logger})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	for _, rule := range rules {
		if _, err := p.engine.CreateSupply(ctx, rule); err != nil {
			t.Fatalf("CreateSupply(%s): %v", rule.Name, err)
		}
	}
	rtr, err := router.New(router.Config{Policy: p.engine, Executor: registry, Clock: p.clock, Logger: logger})
	if err != nil {
		t.Fatalf("router.New: %v", err)
	}
	p.server, err = NewServer(ServerConfig{
		Identity: "provider", Supplies: p.supplies, Objects: p.objects, Channel: p.bus,
		Router: rtr, Tools: tools, Clock: p.clock, Logger: logger,
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	p.demands, err = NewDemandManager(ManagerConfig{
		Identity: "consumer", Store: p.consumerStore, Channel: p.bus, Clock: p.clock, Logger: logger,
	})
	if err != nil {
		t.Fatalf("NewDemandManager: %v", err)
	}
	p.client, err = NewClient(ClientConfig{
		Identity: "consumer", Credentials: p.demands.Cache(), Objects: p.objects,
		Channel: p.bus, Clock: p.clock, Logger: logger,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	provider := &Dispatcher{Identity: "provider", Supplies: p.supplies, Server: p.server, Logger: logger}
	consumer := &Dispatcher{Identity: "consumer", Demands: p.demands, Client: p.client, Logger: logger}
	p.bus.Subscribe(provider.Dispatch)
	p.bus.Subscribe(consumer.Dispatch)
	return p
}

var allowRemote = policy.Rule{
	ID:            "remote-plan",
	Name:          "remote plan access",
	Priority:      100,
	Operations:    []string{"plan"},
	CallerClasses: []callctx.CallerClass{callctx.CallerRemote},
	EntryPoints:   []callctx.EntryPoint{callctx.EntryRemoteMCP},
	Action:        policy.ActionAllow,
}

func TestCredentialExchange(t *testing.T) {
	ctx := context.Background()
	p := newPeers(t)

	if _, err := p.supplies.CreateSupply(ctx, "topic-1", []string{"plan_list"}); err != nil {
		t.Fatalf("CreateSupply: %v", err)
	}
	if _, err := p.demands.CreateDemand(ctx, "topic-1"); err != nil {
		t.Fatalf("CreateDemand: %v", err)
	}

	if !p.demands.HasAccess("topic-1", "provider") {
		t.Fatal("consumer has no access after demand")
	}
	if !p.demands.IsToolAllowed("topic-1", "provider", "plan_list") {
		t.Error("plan_list not allowed")
	}
	if p.demands.IsToolAllowed("topic-1", "provider", "plan_delete") {
		t.Error("plan_delete allowed outside the supply's tool list")
	}
	issued, ok := p.supplies.IssuedCredential("topic-1", "consumer")
	if !ok {
		t.Fatal("provider did not track the issued credential")
	}
	received, _ := p.demands.Credential("topic-1", "provider")
	if received.ID != issued.ID {
		t.Errorf("received credential %s, issued %s", received.ID, issued.ID)
	}
	if demands := p.consumerStore.Demands(); len(demands) != 1 || demands[0].Consumer != "consumer" {
		t.Errorf("persisted demands = %+v", demands)
	}
}

func TestRepeatedDemandIssuesOnce(t *testing.T) {
	ctx := context.Background()
	p := newPeers(t)
	if _, err := p.supplies.CreateSupply(ctx, "topic-1", nil); err != nil {
		t.Fatal(err)
	}

	demand := Demand{ScopeID: "topic-1", Consumer: "consumer", CreatedAt: epoch}
	first, err := p.supplies.HandleDemand(ctx, demand)
	if err != nil || first == nil {
		t.Fatalf("first HandleDemand = %v, %v", first, err)
	}
	second, err := p.supplies.HandleDemand(ctx, demand)
	if err != nil || second != nil {
		t.Fatalf("second HandleDemand = %v, %v; want nil, nil", second, err)
	}

	if got := p.bus.Count(messaging.EnvelopeCredential); got != 1 {
		t.Fatalf("credential deliveries = %d, want 1", got)
	}
	credentials, _ := p.providerStore.LoadCredentials(ctx)
	if len(credentials) != 1 {
		t.Fatalf("persisted credentials = %d, want 1", len(credentials))
	}
}

func TestDemandWithoutSupplyIsIgnored(t *testing.T) {
	p := newPeers(t)
	credential, err := p.supplies.HandleDemand(context.Background(), Demand{ScopeID: "topic-9", Consumer: "consumer"})
	if err != nil || credential != nil {
		t.Fatalf("HandleDemand = %v, %v; want nil, nil", credential, err)
	}
	if sent := p.bus.Sent(); len(sent) != 0 {
		t.Fatalf("sent %d envelopes, want none", len(sent))
	}
}

func TestRevokeCredential(t *testing.T) {
	ctx := context.Background()
	p := newPeers(t)
	if _, err := p.supplies.CreateSupply(ctx, "topic-1", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := p.demands.CreateDemand(ctx, "topic-1"); err != nil {
		t.Fatal(err)
	}
	if !p.demands.IsToolAllowed("topic-1", "provider", "anything") {
		t.Fatal("empty tool list should allow every tool")
	}
	var issued messaging.Envelope
	for _, envelope := range p.bus.Sent() {
		if envelope.Type == messaging.EnvelopeCredential {
			issued = envelope
			break
		}
	}
	if issued.Type == "" {
		t.Fatal("no credential was delivered")
	}

	p.clock.Advance(time.Minute)
	if err := p.supplies.RevokeCredential(ctx, "topic-1", "consumer"); err != nil {
		t.Fatalf("RevokeCredential: %v", err)
	}

	if p.demands.HasAccess("topic-1", "provider") {
		t.Error("consumer still has access after revocation")
	}
	if p.demands.IsToolAllowed("topic-1", "provider", "anything") {
		t.Error("tool still allowed after revocation")
	}
	if _, ok := p.supplies.IssuedCredential("topic-1", "consumer"); ok {
		t.Error("provider still tracks the revoked credential")
	}
	cached, _ := p.demands.Credential("topic-1", "provider")
	if cached.RevokedAt == nil || !cached.RevokedAt.Equal(epoch.Add(time.Minute)) {
		t.Errorf("cached revoke time = %v", cached.RevokedAt)
	}
	if err := p.supplies.RevokeCredential(ctx, "topic-1", "consumer"); !errors.Is(err, ErrCredentialNotFound) {
		t.Errorf("second revoke error = %v, want ErrCredentialNotFound", err)
	}

	_, err := p.client.CallTool(ctx, "plan_list", nil, "topic-1", "provider")
	if !errors.Is(err, ErrNoCredential) {
		t.Fatalf("CallTool after revoke error = %v, want ErrNoCredential", err)
	}

	// A late or repeated delivery of the original grant must not undo
	// the revocation.
	if err := p.bus.Send(ctx, "topic-1", issued); err != nil {
		t.Fatal(err)
	}
	if p.demands.HasAccess("topic-1", "provider") {
		t.Error("redelivered credential restored access after revocation")
	}
	if _, err := p.client.CallTool(ctx, "plan_list", nil, "topic-1", "provider"); !errors.Is(err, ErrNoCredential) {
		t.Fatalf("CallTool after redelivery error = %v, want ErrNoCredential", err)
	}
}

func TestRemoveSupplyRevokesIssued(t *testing.T) {
	ctx := context.Background()
	p := newPeers(t)
	if _, err := p.supplies.CreateSupply(ctx, "topic-1", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := p.demands.CreateDemand(ctx, "topic-1"); err != nil {
		t.Fatal(err)
	}
	if err := p.supplies.RemoveSupply(ctx, "topic-1"); err != nil {
		t.Fatalf("RemoveSupply: %v", err)
	}
	if len(p.supplies.Supplies()) != 0 {
		t.Error("supply still listed")
	}
	if p.demands.HasAccess("topic-1", "provider") {
		t.Error("consumer kept access after the supply was removed")
	}
	if supplies, _ := p.providerStore.LoadSupplies(ctx, "provider"); len(supplies) != 0 {
		t.Errorf("persisted supplies = %+v", supplies)
	}
}

func TestCreateSupplyReplaces(t *testing.T) {
	ctx := context.Background()
	p := newPeers(t)
	if _, err := p.supplies.CreateSupply(ctx, "topic-1", []string{"a"}); err != nil {
		t.Fatal(err)
	}
	if _, err := p.supplies.CreateSupply(ctx, "topic-1", []string{"b"}); err != nil {
		t.Fatal(err)
	}
	supplies := p.supplies.Supplies()
	if len(supplies) != 1 || supplies[0].AllowedTools[0] != "b" {
		t.Fatalf("supplies = %+v", supplies)
	}
}

func grantAccess(t *testing.T, p *peers, tools []string) {
	t.Helper()
	ctx := context.Background()
	if _, err := p.supplies.CreateSupply(ctx, "topic-1", tools); err != nil {
		t.Fatal(err)
	}
	if _, err := p.demands.CreateDemand(ctx, "topic-1"); err != nil {
		t.Fatal(err)
	}
}

func TestCallToolRoundTrip(t *testing.T) {
	p := newPeers(t, allowRemote)
	grantAccess(t, p, nil)

	result, err := p.client.CallTool(context.Background(), "plan_list", map[string]any{"owner": "ana"}, "topic-1", "provider")
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !result.Success {
		t.Fatalf("result = %+v, want success", result)
	}
	value, ok := result.Value.(map[string]any)
	if !ok || value["owner"] != "ana" {
		t.Fatalf("value = %#v", result.Value)
	}
	if p.client.Pending() != 0 {
		t.Errorf("pending = %d after completion", p.client.Pending())
	}
}

func TestCallToolExecutionFailure(t *testing.T) {
	p := newPeers(t, allowRemote)
	grantAccess(t, p, nil)

	result, err := p.client.CallTool(context.Background(), "plan_delete", nil, "topic-1", "provider")
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if result.Success || result.Category != string(operation.CategoryNotFound) {
		t.Fatalf("result = %+v, want not_found failure", result)
	}
}

func TestCallToolPolicyDenied(t *testing.T) {
	p := newPeers(t)
	grantAccess(t, p, nil)

	_, err := p.client.CallTool(context.Background(), "plan_list", nil, "topic-1", "provider")
	var remoteErr *RemoteError
	if !errors.As(err, &remoteErr) {
		t.Fatalf("CallTool error = %v, want *RemoteError", err)
	}
	if remoteErr.Message != policy.ReasonNoMatch {
		t.Errorf("message = %q, want %q", remoteErr.Message, policy.ReasonNoMatch)
	}
}

func TestCallToolWithoutCredential(t *testing.T) {
	p := newPeers(t, allowRemote)

	_, err := p.client.CallTool(context.Background(), "plan_list", nil, "topic-1", "provider")
	if !errors.Is(err, ErrNoCredential) {
		t.Fatalf("CallTool error = %v, want ErrNoCredential", err)
	}
	if sent := p.bus.Sent(); len(sent) != 0 {
		t.Fatalf("sent %d envelopes, want none", len(sent))
	}
	if p.objects.Len() != 0 {
		t.Fatalf("stored %d objects, want none", p.objects.Len())
	}
}

func TestCallToolNotAllowed(t *testing.T) {
	p := newPeers(t, allowRemote)
	grantAccess(t, p, []string{"plan_list"})
	before := len(p.bus.Sent())

	_, err := p.client.CallTool(context.Background(), "plan_delete", nil, "topic-1", "provider")
	if !errors.Is(err, ErrToolNotAllowed) {
		t.Fatalf("CallTool error = %v, want ErrToolNotAllowed", err)
	}
	if after := len(p.bus.Sent()); after != before {
		t.Fatalf("sent %d envelopes during a rejected call", after-before)
	}
}

// silentChannel records every envelope and delivers none.
type silentChannel struct {
	mu        sync.Mutex
	sent      []messaging.Envelope
	delivered chan struct{}
}

func (s *silentChannel) Send(_ context.Context, _ string, envelope messaging.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, envelope)
	select {
	case s.delivered <- struct{}{}:
	default:
	}
	return nil
}

func (s *silentChannel) envelopes() []messaging.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]messaging.Envelope(nil), s.sent...)
}

// sentRequest waits for the client's only request and decodes it.
func sentRequest(t *testing.T, channel *silentChannel) Request {
	t.Helper()
	select {
	case <-channel.delivered:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the request to be sent")
	}
	sent := channel.envelopes()
	if len(sent) != 1 || sent[0].Type != messaging.EnvelopeRequest {
		t.Fatalf("sent envelopes = %+v, want one request", sent)
	}
	var request Request
	if err := sent[0].Decode(&request); err != nil {
		t.Fatalf("decode request: %v", err)
	}
	return request
}

func newLonelyClient(t *testing.T, logs *bytes.Buffer) (*Client, *clock.FakeClock, *silentChannel) {
	t.Helper()
	fake := clock.Fake(epoch)
	cache := NewCredentialCache()
	cache.Put(Credential{ID: "c1", ScopeID: "topic-1", Provider: "provider", Consumer: "consumer", IssuedAt: epoch})
	channel := &silentChannel{delivered: make(chan struct{}, 8)}
	client, err := NewClient(ClientConfig{
		Identity:    "consumer",
		Credentials: cache,
		Objects:     objectstore.NewMemoryStore(objectstore.CompressionNone),
		Channel:     channel,
		Clock:       fake,
		Logger:      slog.New(slog.NewTextHandler(logs, nil)),
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client, fake, channel
}

func TestCallToolTimeout(t *testing.T) {
	var logs bytes.Buffer
	client, fake, channel := newLonelyClient(t, &logs)

	errs := make(chan error, 1)
	go func() {
		_, err := client.CallTool(context.Background(), "plan_list", nil, "topic-1", "provider")
		errs <- err
	}()

	fake.WaitForTimers(1)
	if client.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", client.Pending())
	}
	fake.Advance(DefaultCallTimeout - time.Millisecond)
	select {
	case err := <-errs:
		t.Fatalf("call finished early: %v", err)
	default:
	}
	fake.Advance(time.Millisecond)

	if err := <-errs; !errors.Is(err, ErrTimeout) {
		t.Fatalf("CallTool error = %v, want ErrTimeout", err)
	}
	if client.Pending() != 0 {
		t.Fatalf("pending = %d after timeout, want 0", client.Pending())
	}
	request := sentRequest(t, channel)

	client.HandleResponse(context.Background(), "provider", Response{RequestID: request.RequestID})
	if !strings.Contains(logs.String(), "unknown request") {
		t.Fatalf("late response not logged as unknown request; logs:\n%s", logs.String())
	}
}

func TestCancelAllRequests(t *testing.T) {
	var logs bytes.Buffer
	client, fake, _ := newLonelyClient(t, &logs)

	errs := make(chan error, 2)
	for range 2 {
		go func() {
			_, err := client.CallTool(context.Background(), "plan_list", nil, "topic-1", "provider")
			errs <- err
		}()
	}
	fake.WaitForTimers(2)
	client.CancelAllRequests()

	for range 2 {
		if err := <-errs; !errors.Is(err, ErrCancelled) {
			t.Fatalf("CallTool error = %v, want ErrCancelled", err)
		}
	}
	if fake.Pending() != 0 {
		t.Fatalf("%d timers left after cancel", fake.Pending())
	}
}

func TestCallToolContextCancelled(t *testing.T) {
	var logs bytes.Buffer
	client, fake, _ := newLonelyClient(t, &logs)

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		_, err := client.CallTool(ctx, "plan_list", nil, "topic-1", "provider")
		errs <- err
	}()
	fake.WaitForTimers(1)
	cancel()
	if err := <-errs; !errors.Is(err, context.Canceled) {
		t.Fatalf("CallTool error = %v, want context.Canceled", err)
	}
	if client.Pending() != 0 {
		t.Fatalf("pending = %d", client.Pending())
	}
}

func TestDispatcherDropsOwnAndForgedEnvelopes(t *testing.T) {
	ctx := context.Background()
	p := newPeers(t)
	if _, err := p.supplies.CreateSupply(ctx, "topic-1", nil); err != nil {
		t.Fatal(err)
	}

	// A demand claiming to come from another consumer than its sender.
	forged, err := messaging.NewEnvelope(messaging.EnvelopeDemand, "mallory", "topic-1", Demand{ScopeID: "topic-1", Consumer: "consumer"})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.bus.Send(ctx, "topic-1", forged); err != nil {
		t.Fatal(err)
	}
	if _, ok := p.supplies.IssuedCredential("topic-1", "consumer"); ok {
		t.Fatal("credential issued for a forged demand")
	}

	// A demand sent by the provider to itself.
	own, err := messaging.NewEnvelope(messaging.EnvelopeDemand, "provider", "topic-1", Demand{ScopeID: "topic-1", Consumer: "provider"})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.bus.Send(ctx, "topic-1", own); err != nil {
		t.Fatal(err)
	}
	if got := p.bus.Count(messaging.EnvelopeCredential); got != 0 {
		t.Fatalf("credential deliveries = %d, want 0", got)
	}
}

func TestDispatcherDropsResponseFromOtherSender(t *testing.T) {
	ctx := context.Background()
	var logs bytes.Buffer
	client, fake, channel := newLonelyClient(t, &logs)
	dispatcher := &Dispatcher{Identity: "consumer", Client: client, Logger: discardLogger()}

	results := make(chan error, 1)
	go func() {
		_, err := client.CallTool(ctx, "plan_list", nil, "topic-1", "provider")
		results <- err
	}()
	fake.WaitForTimers(1)
	request := sentRequest(t, channel)

	forged, err := messaging.NewEnvelope(messaging.EnvelopeResponse, "mallory", "topic-1", Response{RequestID: request.RequestID, Error: "forged"})
	if err != nil {
		t.Fatal(err)
	}
	dispatcher.Dispatch(ctx, forged)

	if client.Pending() != 1 {
		t.Fatalf("pending = %d after a response from another sender, want 1", client.Pending())
	}
	if !strings.Contains(logs.String(), "unknown request") || !strings.Contains(logs.String(), "sender=mallory") {
		t.Errorf("forged response not logged as unknown request; logs:\n%s", logs.String())
	}

	genuine, err := messaging.NewEnvelope(messaging.EnvelopeResponse, "provider", "topic-1", Response{RequestID: request.RequestID, Error: "policy denied"})
	if err != nil {
		t.Fatal(err)
	}
	dispatcher.Dispatch(ctx, genuine)
	err = <-results
	if err == nil || !strings.Contains(err.Error(), "policy denied") {
		t.Fatalf("CallTool error = %v, want the provider's error", err)
	}
}

func TestManagersRestoreState(t *testing.T) {
	ctx := context.Background()
	p := newPeers(t)
	grantAccess(t, p, []string{"plan_list"})

	supplies, err := NewSupplyManager(ManagerConfig{Identity: "provider", Store: p.providerStore, Channel: p.bus, Logger: discardLogger()})
	if err != nil {
		t.Fatal(err)
	}
	if err := supplies.Load(ctx); err != nil {
		t.Fatalf("SupplyManager.Load: %v", err)
	}
	if _, ok := supplies.IssuedCredential("topic-1", "consumer"); !ok {
		t.Error("issued credential not restored")
	}
	if len(supplies.Supplies()) != 1 {
		t.Error("supply not restored")
	}

	demands, err := NewDemandManager(ManagerConfig{Identity: "consumer", Store: p.consumerStore, Channel: p.bus, Logger: discardLogger()})
	if err != nil {
		t.Fatal(err)
	}
	if err := demands.Load(ctx); err != nil {
		t.Fatalf("DemandManager.Load: %v", err)
	}
	if !demands.IsToolAllowed("topic-1", "provider", "plan_list") {
		t.Error("received credential not restored")
	}
}
