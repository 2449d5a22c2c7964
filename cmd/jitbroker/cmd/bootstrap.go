package cmd

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/api/option"

	"github.com/jitgroups/broker/internal/adapter/outbound/cel"
	"github.com/jitgroups/broker/internal/adapter/outbound/gcpdirectory"
	"github.com/jitgroups/broker/internal/adapter/outbound/gcpiam"
	"github.com/jitgroups/broker/internal/adapter/outbound/jwtsigner"
	"github.com/jitgroups/broker/internal/adapter/outbound/memory"
	"github.com/jitgroups/broker/internal/adapter/outbound/sqlite"
	"github.com/jitgroups/broker/internal/config"
	"github.com/jitgroups/broker/internal/domain/activation"
	"github.com/jitgroups/broker/internal/domain/catalog"
	"github.com/jitgroups/broker/internal/domain/identity"
	"github.com/jitgroups/broker/internal/domain/provisioning"
	"github.com/jitgroups/broker/internal/domain/subject"
	"github.com/jitgroups/broker/internal/metrics"
	"github.com/jitgroups/broker/internal/policyyaml"
	"github.com/jitgroups/broker/internal/port/outbound"
	"github.com/jitgroups/broker/internal/service"
	"github.com/jitgroups/broker/internal/telemetry"
)

const fanoutLimit = 8

// bootstrap wires the full application from cfg: evaluator, policy
// document, directory/IAM backends, the audit ledger, metrics, telemetry,
// and the composed service.Broker. Callers must call the returned close
// function before exit.
func bootstrap(ctx context.Context, cfg *config.BrokerConfig, logger *slog.Logger) (*service.Broker, func(), error) {
	evaluator, err := cel.NewEvaluator()
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap: cel evaluator: %w", err)
	}

	policyBytes, err := os.ReadFile(cfg.Policy.SourcePath)
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap: read policy document %s: %w", cfg.Policy.SourcePath, err)
	}
	doc, err := policyyaml.Load(policyBytes, evaluator)
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap: load policy document: %w", err)
	}
	cat := catalog.New(doc)

	mapping, err := identity.NewGroupMapping(cfg.Directory.Domain)
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap: group mapping: %w", err)
	}

	directoryClient, iamClient, err := buildBackend(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	signer, err := buildSigner(cfg)
	if err != nil {
		return nil, nil, err
	}

	ledger, err := sqlite.Open(cfg.Ledger.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap: open audit ledger: %w", err)
	}

	var tel *telemetry.Providers
	if cfg.Telemetry.Enabled {
		tel, err = telemetry.Init(ctx, cfg.Telemetry.ServiceName)
		if err != nil {
			_ = ledger.Close()
			return nil, nil, fmt.Errorf("bootstrap: init telemetry: %w", err)
		}
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(prometheus.DefaultRegisterer)
	}

	resolver := subject.New(directoryClient, mapping, fanoutLimit, logger)
	prov := provisioning.New(directoryClient, iamClient, mapping)
	bounds := activation.ReviewerBounds{Min: cfg.Activation.ReviewerMin, Max: cfg.Activation.ReviewerMax}
	act := activation.New(cat, prov, signer, bounds, nil, logger)

	broker := service.New(cat, resolver, act, prov, m, tel, ledger, logger)
	closeFn := func() {
		if err := broker.Close(ctx); err != nil {
			logger.Warn("error closing broker resources", "error", err)
		}
	}
	return broker, closeFn, nil
}

func buildBackend(ctx context.Context, cfg *config.BrokerConfig) (outbound.DirectoryGroupsClient, outbound.ResourceIamClient, error) {
	switch cfg.Backend.Kind {
	case "gcp":
		opts := []option.ClientOption{}
		dirClient, err := gcpdirectory.New(ctx, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap: gcp directory client: %w", err)
		}
		iamClient, err := gcpiam.New(ctx, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap: gcp iam client: %w", err)
		}
		return dirClient, iamClient, nil
	default:
		return memory.NewDirectoryStore(), memory.NewIamStore(), nil
	}
}

func buildSigner(cfg *config.BrokerConfig) (outbound.TokenSigner, error) {
	if cfg.Signing.Ephemeral {
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: generate ephemeral signing key: %w", err)
		}
		return jwtsigner.New(priv, cfg.Signing.Issuer, cfg.Signing.Audience), nil
	}

	raw, err := os.ReadFile(cfg.Signing.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: read signing key %s: %w", cfg.Signing.KeyPath, err)
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("bootstrap: %s is not PEM-encoded", cfg.Signing.KeyPath)
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: parse signing key: %w", err)
	}
	priv, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("bootstrap: %s is not an Ed25519 private key", cfg.Signing.KeyPath)
	}
	return jwtsigner.New(priv, cfg.Signing.Issuer, cfg.Signing.Audience), nil
}
