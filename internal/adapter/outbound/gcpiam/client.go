// Package gcpiam adapts outbound.ResourceIamClient to the Cloud Resource
// Manager v3 project IAM policy API, using the same etag-guarded
// read-modify-write pattern crossplane-contrib-provider-gcp applies to
// service account IAM policies.
package gcpiam

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/api/cloudresourcemanager/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/jitgroups/broker/internal/port/outbound"
)

// modifyRetries and modifyBackoff match the §4.7 optimistic-concurrency
// contract: up to 4 retries, ~200ms fixed back-off between attempts.
const (
	modifyRetries = 4
	modifyBackoff = 200 * time.Millisecond
)

// Client implements outbound.ResourceIamClient against real GCP project IAM
// policies.
type Client struct {
	svc *cloudresourcemanager.Service
}

// New constructs a Client using Application Default Credentials plus any
// additional client options.
func New(ctx context.Context, opts ...option.ClientOption) (*Client, error) {
	svc, err := cloudresourcemanager.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcpiam: new service: %w", err)
	}
	return &Client{svc: svc}, nil
}

var _ outbound.ResourceIamClient = (*Client)(nil)

// GetIamPolicy implements outbound.ResourceIamClient. resource is a
// "projects/<id>" name.
func (c *Client) GetIamPolicy(ctx context.Context, resource string) (outbound.IamPolicy, error) {
	policy, err := c.svc.Projects.GetIamPolicy(resource, &cloudresourcemanager.GetIamPolicyRequest{
		Options: &cloudresourcemanager.GetPolicyOptions{RequestedPolicyVersion: 3},
	}).Context(ctx).Do()
	if err != nil {
		return outbound.IamPolicy{}, fmt.Errorf("gcpiam: get iam policy for %s: %w", resource, err)
	}
	return toIamPolicy(policy), nil
}

// ModifyIamPolicy implements outbound.ResourceIamClient: a read-modify-write
// loop, retried up to modifyRetries times on an etag precondition failure
// (HTTP 409/412) with a fixed back-off.
func (c *Client) ModifyIamPolicy(ctx context.Context, resource string, mutator outbound.PolicyMutator, reason string) error {
	for attempt := 0; attempt <= modifyRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		current, err := c.GetIamPolicy(ctx, resource)
		if err != nil {
			return err
		}

		next, err := mutator(current)
		if err != nil {
			return fmt.Errorf("gcpiam: mutate policy for %s (%s): %w", resource, reason, err)
		}

		_, err = c.svc.Projects.SetIamPolicy(resource, &cloudresourcemanager.SetIamPolicyRequest{
			Policy: fromIamPolicy(next),
		}).Context(ctx).Do()
		if err == nil {
			return nil
		}
		if !isPreconditionFailure(err) {
			return fmt.Errorf("gcpiam: set iam policy for %s: %w", resource, err)
		}
		if attempt < modifyRetries {
			time.Sleep(modifyBackoff)
		}
	}
	return fmt.Errorf("gcpiam: precondition failed for %s after %d retries", resource, modifyRetries)
}

func toIamPolicy(p *cloudresourcemanager.Policy) outbound.IamPolicy {
	out := outbound.IamPolicy{ETag: p.Etag, Bindings: make([]outbound.IamBinding, 0, len(p.Bindings))}
	for _, b := range p.Bindings {
		binding := outbound.IamBinding{Role: b.Role, Members: append([]string(nil), b.Members...)}
		if b.Condition != nil {
			binding.Condition = &outbound.IamCondition{
				Title:       b.Condition.Title,
				Description: b.Condition.Description,
				Expression:  b.Condition.Expression,
			}
		}
		out.Bindings = append(out.Bindings, binding)
	}
	return out
}

func fromIamPolicy(p outbound.IamPolicy) *cloudresourcemanager.Policy {
	out := &cloudresourcemanager.Policy{Etag: p.ETag, Version: 3, Bindings: make([]*cloudresourcemanager.Binding, 0, len(p.Bindings))}
	for _, b := range p.Bindings {
		binding := &cloudresourcemanager.Binding{Role: b.Role, Members: append([]string(nil), b.Members...)}
		if b.Condition != nil {
			binding.Condition = &cloudresourcemanager.Expr{
				Title:       b.Condition.Title,
				Description: b.Condition.Description,
				Expression:  b.Condition.Expression,
			}
		}
		out.Bindings = append(out.Bindings, binding)
	}
	return out
}

func isPreconditionFailure(err error) bool {
	apiErr, ok := err.(*googleapi.Error)
	return ok && (apiErr.Code == 409 || apiErr.Code == 412)
}
