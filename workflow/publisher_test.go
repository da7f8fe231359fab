package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/mmdatafocus/stockledger/models"
	"google.golang.org/grpc/codes"
)

func newEmulatedPublisher(t *testing.T, opts ...pstest.ServerReactorOption) (*PubSubPublisher, *pstest.Server) {
	t.Helper()
	srv := pstest.NewServer(opts...)
	t.Cleanup(func() { _ = srv.Close() })
	t.Setenv("PUBSUB_EMULATOR_HOST", srv.Addr)

	ctx := context.Background()
	client, err := pubsub.NewClient(ctx, "stockledger-test")
	if err != nil {
		t.Fatalf("pubsub.NewClient error: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	p, err := NewPubSubPublisherWithClient(ctx, client, "stock-movements-test")
	if err != nil {
		t.Fatalf("NewPubSubPublisherWithClient error: %v", err)
	}
	t.Cleanup(p.Stop)
	return p, srv
}

func TestPubSubPublisherOrdersByBalanceKey(t *testing.T) {
	p, srv := newEmulatedPublisher(t)
	e, _ := newTestEngine(t, WithPublisher(p))
	ctx := context.Background()

	receive(t, e, 1, 1, "10", "5")
	if _, err := e.ShipStock(ctx, tenant, &NewStockShipment{WarehouseId: 1, ProductId: 1, Qty: dec("4")}); err != nil {
		t.Fatalf("ShipStock error: %v", err)
	}
	receive(t, e, 2, 1, "3", "6")

	msgs := srv.Messages()
	if len(msgs) != 3 {
		t.Fatalf("expected 3 published messages, got %d", len(msgs))
	}
	expectedTypes := []models.LedgerEntryType{models.LedgerEntryTypeReceive, models.LedgerEntryTypeIssue, models.LedgerEntryTypeReceive}
	for i, m := range msgs {
		var ev models.MovementEvent
		if err := json.Unmarshal(m.Data, &ev); err != nil {
			t.Fatalf("message %d: decode error: %v", i, err)
		}
		k := models.BalanceKey{TenantId: ev.TenantId, WarehouseId: ev.WarehouseId, ProductId: ev.ProductId, VariantId: ev.VariantId}
		if m.OrderingKey != k.String() {
			t.Fatalf("message %d: expected ordering key %q, got %q", i, k.String(), m.OrderingKey)
		}
		if ev.Type != expectedTypes[i] || m.Attributes["type"] != string(ev.Type) {
			t.Fatalf("message %d: expected type %s, got event %s attribute %s", i, expectedTypes[i], ev.Type, m.Attributes["type"])
		}
		if m.Attributes["tenant_id"] != tenant || m.Attributes["correlation_id"] == "" || m.Attributes["correlation_id"] != ev.CorrelationId {
			t.Fatalf("message %d: unexpected attributes %v", i, m.Attributes)
		}
	}
	if msgs[0].OrderingKey != msgs[1].OrderingKey || msgs[0].OrderingKey == msgs[2].OrderingKey {
		t.Fatalf("expected warehouse 1 movements to share an ordering key apart from warehouse 2, got %q %q %q",
			msgs[0].OrderingKey, msgs[1].OrderingKey, msgs[2].OrderingKey)
	}
}

func TestPubSubPublisherResumesAfterFailure(t *testing.T) {
	p, srv := newEmulatedPublisher(t, pstest.WithErrorInjection("Publish", codes.InvalidArgument, "rejected"))
	events := []models.MovementEvent{
		{TenantId: tenant, LedgerEntryId: 1, Type: models.LedgerEntryTypeReceive, WarehouseId: 1, ProductId: 1},
		{TenantId: tenant, LedgerEntryId: 2, Type: models.LedgerEntryTypeIssue, WarehouseId: 1, ProductId: 1},
	}

	err := p.Publish(context.Background(), events)
	if err == nil {
		t.Fatalf("expected publish errors")
	}
	for _, want := range []string{"ledger entry 1", "ledger entry 2"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected error for %s, got %v", want, err)
		}
	}
	// the second event is sent to the server rather than refused on a paused key
	if errors.As(err, &pubsub.ErrPublishingPaused{}) {
		t.Fatalf("expected the ordering key to be resumed, got %v", err)
	}
	if n := len(srv.Messages()); n != 0 {
		t.Fatalf("expected no stored messages, got %d", n)
	}
}
