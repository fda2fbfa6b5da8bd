package oplog

import (
	"context"
	"errors"
	"testing"

	"github.com/MarkoPoloResearchLab/wallet/pkg/wallet"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogOperationEmitsInfoLine(test *testing.T) {
	core, recorded := observer.New(zap.InfoLevel)
	logger := New(zap.New(core))

	amount, err := wallet.ParseAmount("42.500")
	if err != nil {
		test.Fatalf("parse amount: %v", err)
	}
	logger.LogOperation(context.Background(), wallet.OperationLog{
		Operation: "add_balance",
		Status:    "ok",
		Amount:    amount,
	})

	entries := recorded.All()
	if len(entries) != 1 {
		test.Fatalf("expected one log entry, got %d", len(entries))
	}
	if entries[0].Level != zap.InfoLevel {
		test.Fatalf("expected info level, got %v", entries[0].Level)
	}
	fields := entries[0].ContextMap()
	if fields["operation"] != "add_balance" || fields["status"] != "ok" {
		test.Fatalf("unexpected fields: %v", fields)
	}
	if _, present := fields["document"]; present {
		test.Fatalf("empty document should be omitted: %v", fields)
	}
}

func TestLogOperationEmitsWarnOnError(test *testing.T) {
	core, recorded := observer.New(zap.InfoLevel)
	logger := New(zap.New(core))

	logger.LogOperation(context.Background(), wallet.OperationLog{
		Operation: "redeem_token",
		Status:    "error",
		Error:     errors.New("token expired"),
	})

	entries := recorded.All()
	if len(entries) != 1 {
		test.Fatalf("expected one log entry, got %d", len(entries))
	}
	if entries[0].Level != zap.WarnLevel {
		test.Fatalf("expected warn level, got %v", entries[0].Level)
	}
	if entries[0].ContextMap()["error"] != "token expired" {
		test.Fatalf("unexpected fields: %v", entries[0].ContextMap())
	}
}
