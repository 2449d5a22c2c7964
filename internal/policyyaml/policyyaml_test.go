package policyyaml

import (
	"context"
	"testing"

	"github.com/jitgroups/broker/internal/domain/policy"
)

type fakeEvaluator struct {
	result bool
	err    error
}

func (f fakeEvaluator) Evaluate(_ context.Context, _ string, _ policy.EvaluationInput, _ map[string]any) (bool, error) {
	return f.result, f.err
}

const sampleDoc = `
schemaVersion: 1
environments:
  - name: prod
    source: policy.yaml
    acl:
      - principal: "class:authenticated-users"
        mask: VIEW
    constraints:
      - type: expiry
        class: JOIN
        name: default-expiry
        min: 15m
        max: 8h
    systems:
      - name: billing
        acl:
          - principal: "group:billing-admins@example.com"
            mask: APPROVE_OTHERS
        groups:
          - name: readonly
            description: Billing read-only access
            constraints:
              - type: expression
                class: APPROVE
                name: business-hours
                displayName: Business hours only
                predicate: "hour >= 9 && hour <= 17"
                variables:
                  - name: hour
                    kind: int
                    min: 0
                    max: 23
            privileges:
              iam:
                - resource: "projects/acme-prod"
                  role: "roles/viewer"
                  description: "readonly access"
`

func TestLoadBuildsFullTree(t *testing.T) {
	doc, err := Load([]byte(sampleDoc), fakeEvaluator{result: true})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	env, ok := doc.Environment("prod")
	if !ok {
		t.Fatal("expected environment prod")
	}
	if len(env.ACL) != 1 {
		t.Fatalf("expected 1 ACL entry, got %d", len(env.ACL))
	}
	if len(env.Constraints) != 1 {
		t.Fatalf("expected 1 constraint, got %d", len(env.Constraints))
	}

	sys, ok := env.System("billing")
	if !ok {
		t.Fatal("expected system billing")
	}

	group, ok := sys.Group("readonly")
	if !ok {
		t.Fatal("expected group readonly")
	}
	if len(group.Privileges) != 1 {
		t.Fatalf("expected 1 privilege, got %d", len(group.Privileges))
	}
	if group.Privileges[0].Role != "roles/viewer" {
		t.Fatalf("unexpected role %q", group.Privileges[0].Role)
	}
}

func TestLoadRejectsUnsupportedSchemaVersion(t *testing.T) {
	_, err := Load([]byte("schemaVersion: 2\nenvironments: []\n"), nil)
	if err == nil {
		t.Fatal("expected an error for unsupported schemaVersion")
	}
}

func TestLoadRejectsUnknownPermissionMask(t *testing.T) {
	doc := `
schemaVersion: 1
environments:
  - name: prod
    acl:
      - principal: "class:authenticated-users"
        mask: SUPERUSER
`
	_, err := Load([]byte(doc), nil)
	if err == nil {
		t.Fatal("expected an error for unknown permission mask")
	}
}

func TestLoadRejectsMalformedIamBinding(t *testing.T) {
	doc := `
schemaVersion: 1
environments:
  - name: prod
    systems:
      - name: billing
        groups:
          - name: readonly
            privileges:
              iam:
                - role: "roles/viewer"
`
	_, err := Load([]byte(doc), nil)
	if err == nil {
		t.Fatal("expected an error for a binding missing resource")
	}
}
