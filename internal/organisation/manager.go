package organisation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"farmdash/internal/audit"
	"farmdash/internal/rbac"
	"farmdash/internal/store"
	"farmdash/internal/stripe"
	"farmdash/internal/util"
)

var (
	ErrOrganisationNotFound = errors.New("organisation: organisation not found")
	ErrNameRequired         = errors.New("organisation: name is required")
	ErrUnknownTier          = errors.New("organisation: unknown subscription tier")
)

type Organisation struct {
	ID                   string                `json:"id"`
	Name                 string                `json:"name"`
	SubscriptionTier     Tier                  `json:"subscriptionTier"`
	SubscriptionStatus   string                `json:"subscriptionStatus"`
	Limits               Limits                `json:"limits"`
	Settings             Settings              `json:"settings"`
	StripeCustomerID     util.Optional[string] `json:"stripeCustomerId"`
	StripeSubscriptionID util.Optional[string] `json:"stripeSubscriptionId"`
	CreatedBy            string                `json:"createdBy"`
	CreatedAt            time.Time             `json:"createdAt"`
	UpdatedAt            time.Time             `json:"updatedAt"`
}

// Limits are advisory caps stored on the organisation. The farm manager
// consults MaxFarms at farm-creation time; the user caps are left to
// invitation workflows.
type Limits struct {
	MaxFarms        int `json:"maxFarms"`
	MaxUsersPerFarm int `json:"maxUsersPerFarm"`
	MaxUsersTotal   int `json:"maxUsersTotal"`
}

type Settings struct {
	AllowSelfRegistration bool          `json:"allowSelfRegistration"`
	RequireApproval       bool          `json:"requireApproval"`
	DefaultRole           rbac.RoleType `json:"defaultRole"`
	AuditLoggingEnabled   bool          `json:"auditLoggingEnabled"`
}

// Billing is the slice of the Stripe client the subscription flow needs.
type Billing interface {
	CreateCustomer(ctx context.Context, params stripe.CreateCustomerParams) (stripe.Customer, error)
	AddSubscriptionToCustomer(ctx context.Context, customerID string, priceID string) (string, error)
	SwitchSubscriptionPlan(ctx context.Context, subscriptionID string, newPriceID string) error
	CancelSubscription(ctx context.Context, subscriptionID string) error
}

type Manager struct {
	logger  *slog.Logger
	store   store.DocumentStore
	roles   *rbac.Manager
	auditor *audit.Auditor
	billing Billing // nil when billing is not configured
}

func NewManager(logger *slog.Logger, docs store.DocumentStore, roles *rbac.Manager, auditor *audit.Auditor, billing Billing) Manager {
	return Manager{
		logger:  logger.With("component", "organisation"),
		store:   docs,
		roles:   roles,
		auditor: auditor,
		billing: billing,
	}
}

type CreateOrganisationParam struct {
	OwnerID string
	Name    string
	Tier    Tier
}

// CreateOrganisation persists an organisation with tier defaults and
// grants the creating user the organization_admin role scoped to it.
func (m *Manager) CreateOrganisation(ctx context.Context, param CreateOrganisationParam) (Organisation, error) {
	if param.Name == "" {
		return Organisation{}, ErrNameRequired
	}

	tier := param.Tier
	if tier == "" {
		tier = TierFree
	}
	limits, ok := tierLimits[tier]
	if !ok {
		return Organisation{}, ErrUnknownTier
	}

	now := time.Now().UTC()
	org := Organisation{
		ID:                 uuid.NewString(),
		Name:               param.Name,
		SubscriptionTier:   tier,
		SubscriptionStatus: "active",
		Limits:             limits,
		Settings: Settings{
			AllowSelfRegistration: false,
			RequireApproval:       true,
			DefaultRole:           rbac.RoleFarmViewer,
			AuditLoggingEnabled:   true,
		},
		CreatedBy: param.OwnerID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := m.store.Put(ctx, store.CollectionOrganizations, org.ID, org); err != nil {
		return Organisation{}, fmt.Errorf("failed to create organisation: %w", err)
	}

	if _, err := m.roles.GrantRole(ctx, rbac.GrantRoleParam{
		UserID:    param.OwnerID,
		RoleType:  rbac.RoleOrganizationAdmin,
		ScopeType: rbac.ScopeOrganization,
		ScopeID:   org.ID,
		GrantedBy: param.OwnerID,
	}); err != nil {
		return Organisation{}, fmt.Errorf("failed to grant admin role for organisation %s: %w", org.ID, err)
	}

	m.auditor.Record(ctx, param.OwnerID, "organization:created", "organization", org.ID, map[string]any{
		"name": org.Name,
		"tier": string(tier),
	})

	return org, nil
}

func (m *Manager) GetOrganisation(ctx context.Context, id string) (Organisation, error) {
	var org Organisation
	if err := m.store.Get(ctx, store.CollectionOrganizations, id, &org); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Organisation{}, ErrOrganisationNotFound
		}
		return Organisation{}, fmt.Errorf("failed to load organisation %s: %w", id, err)
	}
	return org, nil
}

type ChangeSubscriptionParam struct {
	OrganisationID string
	NewTier        Tier
	ActorID        string
	// BillingEmail is attached to the Stripe customer created on the first
	// upgrade to a paid tier.
	BillingEmail string
}

// ChangeSubscription moves an organisation to a new tier, syncing Stripe
// when billing is configured: the first upgrade to a paid tier creates the
// customer and subscription, later changes switch the plan, and a downgrade
// to free cancels it. Limits are re-derived from the new tier.
func (m *Manager) ChangeSubscription(ctx context.Context, param ChangeSubscriptionParam) (Organisation, error) {
	limits, ok := tierLimits[param.NewTier]
	if !ok {
		return Organisation{}, ErrUnknownTier
	}

	org, err := m.GetOrganisation(ctx, param.OrganisationID)
	if err != nil {
		return Organisation{}, err
	}
	previousTier := org.SubscriptionTier

	if m.billing != nil {
		if err := m.syncBilling(ctx, &org, param); err != nil {
			return Organisation{}, err
		}
	}

	org.SubscriptionTier = param.NewTier
	org.Limits = limits
	org.UpdatedAt = time.Now().UTC()

	if err := m.store.Put(ctx, store.CollectionOrganizations, org.ID, org); err != nil {
		return Organisation{}, fmt.Errorf("failed to update organisation %s: %w", org.ID, err)
	}

	m.auditor.Record(ctx, param.ActorID, "organization:subscription_changed", "organization", org.ID, map[string]any{
		"from": string(previousTier),
		"to":   string(param.NewTier),
	})

	return org, nil
}

// syncBilling reconciles the organisation's Stripe state with the requested
// tier and records the resulting customer and subscription ids on org.
func (m *Manager) syncBilling(ctx context.Context, org *Organisation, param ChangeSubscriptionParam) error {
	subscriptionID, hasSub := org.StripeSubscriptionID.Get()

	if param.NewTier == TierFree {
		if !hasSub {
			return nil
		}
		if err := m.billing.CancelSubscription(ctx, subscriptionID); err != nil {
			return fmt.Errorf("failed to cancel stripe subscription for organisation %s: %w", org.ID, err)
		}
		org.StripeSubscriptionID = util.None[string]()
		return nil
	}

	priceID, err := PriceIDForTier(param.NewTier)
	if err != nil {
		return err
	}

	if hasSub {
		if err := m.billing.SwitchSubscriptionPlan(ctx, subscriptionID, priceID); err != nil {
			return fmt.Errorf("failed to switch stripe plan for organisation %s: %w", org.ID, err)
		}
		return nil
	}

	customerID, hasCustomer := org.StripeCustomerID.Get()
	if !hasCustomer {
		customer, err := m.billing.CreateCustomer(ctx, stripe.CreateCustomerParams{
			Email: param.BillingEmail,
			Name:  org.Name,
		})
		if err != nil {
			return fmt.Errorf("failed to create stripe customer for organisation %s: %w", org.ID, err)
		}
		customerID = customer.ID
		org.StripeCustomerID = util.Some(customerID)
	}

	newSubscriptionID, err := m.billing.AddSubscriptionToCustomer(ctx, customerID, priceID)
	if err != nil {
		return fmt.Errorf("failed to create stripe subscription for organisation %s: %w", org.ID, err)
	}
	org.StripeSubscriptionID = util.Some(newSubscriptionID)
	return nil
}
