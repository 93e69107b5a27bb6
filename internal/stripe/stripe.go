package stripe

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stripe/stripe-go/v76"
	stripeCustomer "github.com/stripe/stripe-go/v76/customer"
	stripeSubscription "github.com/stripe/stripe-go/v76/subscription"
)

type Client struct {
	logger *slog.Logger
	APIKey string
}

func NewClient(logger *slog.Logger, apiKey string) *Client {
	return &Client{
		logger: logger.With("component", "stripe"),
		APIKey: apiKey,
	}
}

type Customer struct {
	ID    string
	Email string
}

type CreateCustomerParams struct {
	Email string
	Name  string
}

func (c *Client) CreateCustomer(ctx context.Context, params CreateCustomerParams) (Customer, error) {
	var customer Customer

	stripe.Key = c.APIKey
	result, err := stripeCustomer.New(&stripe.CustomerParams{
		Email: stripe.String(params.Email),
		Name:  stripe.String(params.Name),
	})
	if err != nil {
		return customer, fmt.Errorf("failed to create Stripe customer: %w", err)
	}

	customer.ID = result.ID
	customer.Email = result.Email

	return customer, nil
}

func (c *Client) AddSubscriptionToCustomer(ctx context.Context, customerID string, priceID string) (string, error) {
	stripe.Key = c.APIKey

	subscription, err := stripeSubscription.New(&stripe.SubscriptionParams{
		Customer: stripe.String(customerID),
		Items: []*stripe.SubscriptionItemsParams{
			{
				Price: stripe.String(priceID),
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create Stripe subscription: %w", err)
	}
	return subscription.ID, nil
}

// SwitchSubscriptionPlan moves an existing subscription to a new price by
// updating its first item in place.
func (c *Client) SwitchSubscriptionPlan(ctx context.Context, subscriptionID string, newPriceID string) error {
	stripe.Key = c.APIKey

	subscription, err := stripeSubscription.Get(subscriptionID, nil)
	if err != nil {
		return fmt.Errorf("failed to retrieve Stripe subscription: %w", err)
	}

	if len(subscription.Items.Data) == 0 {
		return fmt.Errorf("no subscription items found for subscription ID: %s", subscriptionID)
	}

	if _, err = stripeSubscription.Update(subscriptionID, &stripe.SubscriptionParams{
		Items: []*stripe.SubscriptionItemsParams{
			{
				ID:    stripe.String(subscription.Items.Data[0].ID),
				Price: stripe.String(newPriceID),
			},
		},
	}); err != nil {
		return fmt.Errorf("failed to update Stripe subscription: %w", err)
	}
	return nil
}

func (c *Client) CancelSubscription(ctx context.Context, subscriptionID string) error {
	stripe.Key = c.APIKey

	if _, err := stripeSubscription.Cancel(subscriptionID, nil); err != nil {
		return fmt.Errorf("failed to cancel Stripe subscription: %w", err)
	}
	return nil
}
