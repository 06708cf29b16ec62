package webhooks

import (
	"context"
	"net/http"

	"github.com/angelmondragon/sareehub-backend/api/responses"
	"github.com/angelmondragon/sareehub-backend/api/validators"
	internalorders "github.com/angelmondragon/sareehub-backend/internal/orders"
	paymentwebhook "github.com/angelmondragon/sareehub-backend/internal/webhooks/payment"
	pkgerrors "github.com/angelmondragon/sareehub-backend/pkg/errors"
	"github.com/angelmondragon/sareehub-backend/pkg/logger"
)

type PaymentService interface {
	HandlePaymentWebhook(ctx context.Context, input internalorders.PaymentWebhookInput) (*internalorders.PaymentResult, error)
}

type deliveryGuard interface {
	CheckAndMark(ctx context.Context, deliveryID string) (bool, error)
	Delete(ctx context.Context, deliveryID string) error
}

// PaymentWebhook applies a gateway payment notification to its order.
// Deliveries are deduplicated by transaction id and status before reaching the service.
func PaymentWebhook(svc PaymentService, guard deliveryGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		// TODO: verify the gateway signature header once a payment provider is selected.
		var input internalorders.PaymentWebhookInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{
				"order_id":       input.OrderID.String(),
				"payment_status": string(input.PaymentStatus),
				"transaction_id": input.PaymentTransactionID,
			})
		}

		deliveryID := paymentwebhook.DeliveryID(input.PaymentTransactionID, string(input.PaymentStatus))
		if guard != nil && deliveryID != "" {
			seen, err := guard.CheckAndMark(ctx, deliveryID)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check webhook delivery"))
				return
			}
			if seen {
				if logg != nil {
					logg.Info(ctx, "payment webhook replay ignored")
				}
				responses.WriteSuccess(w, internalorders.PaymentResult{Replayed: true})
				return
			}
		}

		result, err := svc.HandlePaymentWebhook(ctx, input)
		if err != nil {
			// a delivery that stays marked turns the gateway's retry into a false replay
			if guard != nil && deliveryID != "" {
				if delErr := guard.Delete(ctx, deliveryID); delErr != nil && logg != nil {
					logg.Error(ctx, "forget webhook delivery", delErr)
				}
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}
