package controllers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/ConventionPay/app/models"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/proofstorage"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/reconciliation"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/upload"
)

const (
	// HeaderIdempotencyKey makes a batch validation replayable.
	HeaderIdempotencyKey = "Idempotency-Key"
	// HeaderIdempotentReplay marks a reply served from the idempotency cache.
	HeaderIdempotentReplay = "Idempotent-Replay"

	idempotencyPrefix = "conventionpay:idempotency:batch:"
	idempotencyTTL    = 24 * time.Hour
	registrantActor   = "registrant"
	sniffLen          = 512
)

// PaymentController serves proofs and reconciliation decisions.
type PaymentController struct {
	services *Services
}

// NewPaymentController creates a payment controller.
func NewPaymentController(s *Services) *PaymentController {
	return &PaymentController{services: s}
}

type batchRequest struct {
	PaymentIDs []uint `json:"payment_ids"`
}

// HandleAttachProof records a proof of payment. The body is either JSON
// (proof_ref, declared_amount, provider_ref) or multipart with a "receipt"
// file that is stored first.
func (pc *PaymentController) HandleAttachProof(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "Invalid payment id")
	}
	actor := actorID(c)
	if actor == "" {
		actor = registrantActor
	}

	var in reconciliation.ProofInput
	receiptKey := ""
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		stored, key, err := pc.storeReceipt(c, id)
		if err != nil {
			return err
		}
		if stored == nil {
			return nil
		}
		in, receiptKey = *stored, key
	} else if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid request body")
	}

	ctx := c.UserContext()
	rec, err := pc.services.Engine.AttachProof(ctx, id, actor, in)
	if err != nil {
		if receiptKey != "" {
			if derr := pc.services.Proofs.Delete(ctx, receiptKey); derr != nil {
				log.Warnf("[API] Orphaned receipt %s for payment %d: %v", receiptKey, id, derr)
			} else {
				log.Infof("[API] Removed receipt %s after refused proof for payment %d", receiptKey, id)
			}
		}
		return respondError(c, err)
	}
	return c.JSON(rec)
}

// storeReceipt validates and stores the uploaded receipt and returns the
// proof input with the object key. A nil input with a nil error means the
// response was already written.
func (pc *PaymentController) storeReceipt(c *fiber.Ctx, paymentID uint) (*reconciliation.ProofInput, string, error) {
	if pc.services.Proofs == nil {
		return nil, "", c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "service_unavailable", "message": "Receipt storage is not configured"})
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(c.FormValue("declared_amount")))
	if err != nil {
		return nil, "", respondError(c, fmt.Errorf("%w: %q", reconciliation.ErrInvalidAmount, c.FormValue("declared_amount")))
	}
	if err := reconciliation.CheckDeclaredAmount(amount); err != nil {
		return nil, "", respondError(c, err)
	}

	fh, err := c.FormFile("receipt")
	if err != nil {
		return nil, "", badRequest(c, "Missing receipt file")
	}
	if fh.Size > upload.MaxReceiptSize {
		return nil, "", c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{"error": "payload_too_large", "message": "Receipt exceeds the maximum size"})
	}

	ctx := c.UserContext()
	rec, err := pc.services.Repos.Payment.FindByID(ctx, paymentID)
	if err != nil {
		return nil, "", respondError(c, err)
	}
	if rec.State != models.PaymentStatePending {
		return nil, "", respondError(c, fmt.Errorf("%w: payment %d is %s", reconciliation.ErrProofClosed, rec.ID, rec.State))
	}
	reg, err := pc.services.Repos.Registration.FindByID(ctx, rec.RegistrationID)
	if err != nil {
		return nil, "", respondError(c, err)
	}

	file, err := fh.Open()
	if err != nil {
		return nil, "", respondError(c, err)
	}
	defer file.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, "", respondError(c, err)
	}
	head = head[:n]
	contentType, err := upload.ValidateReceiptBySniff(fh.Filename, head)
	if err != nil {
		return nil, "", c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}

	key := proofstorage.ObjectKey(reg.ReferenceCode, rec.InstallmentIndex, proofstorage.ExtensionFor(contentType), time.Now())
	ref, err := pc.services.Proofs.Put(ctx, key, contentType, io.MultiReader(bytes.NewReader(head), file), fh.Size)
	if err != nil {
		return nil, "", respondError(c, err)
	}
	log.Infof("[API] Stored receipt for payment %d at %s", paymentID, ref)

	return &reconciliation.ProofInput{
		ProofRef:       ref,
		DeclaredAmount: amount,
		ProviderRef:    c.FormValue("provider_ref"),
	}, key, nil
}

// HandleValidate accepts one installment.
func (pc *PaymentController) HandleValidate(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "Invalid payment id")
	}
	res, err := pc.services.Engine.Validate(c.UserContext(), id, actorID(c))
	return respondResult(c, res, err)
}

// HandleReject rejects one installment with a reason.
func (pc *PaymentController) HandleReject(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "Invalid payment id")
	}
	var req reasonRequest
	if err := parseOptionalBody(c, &req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	res, err := pc.services.Engine.Reject(c.UserContext(), id, actorID(c), req.Reason)
	return respondResult(c, res, err)
}

// HandleReinstate reopens a rejected installment.
func (pc *PaymentController) HandleReinstate(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "Invalid payment id")
	}
	res, err := pc.services.Engine.Reinstate(c.UserContext(), id, actorID(c))
	return respondResult(c, res, err)
}

// HandleRefund marks a validated installment as refunded.
func (pc *PaymentController) HandleRefund(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "Invalid payment id")
	}
	var req reasonRequest
	if err := parseOptionalBody(c, &req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	res, err := pc.services.Engine.Refund(c.UserContext(), id, actorID(c), req.Reason)
	return respondResult(c, res, err)
}

// HandleValidateBatch validates many installments after a preflight. With an
// Idempotency-Key header a successful reply is replayed for 24 hours.
func (pc *PaymentController) HandleValidateBatch(c *fiber.Ctx) error {
	var req batchRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	ctx := c.UserContext()
	actor := actorID(c)
	cacheKey := ""
	if key := strings.TrimSpace(c.Get(HeaderIdempotencyKey)); key != "" && pc.services.Responses != nil {
		cacheKey = idempotencyPrefix + actor + ":" + key
		cached, err := pc.services.Responses.Get(ctx, cacheKey)
		if err == nil {
			c.Set(HeaderIdempotentReplay, "true")
			c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
			return c.SendString(cached)
		}
		if !errors.Is(err, redis.Nil) {
			log.Warnf("[API] Idempotency lookup failed for %s: %v", cacheKey, err)
		}
	}

	res, err := pc.services.Engine.ValidateBatch(ctx, req.PaymentIDs, actor)
	if err != nil {
		if res != nil {
			log.Errorf("[API] Batch %s stopped after %d validations: %v", res.BatchID, len(res.ValidatedIDs), err)
		}
		return respondError(c, err)
	}

	body, err := json.Marshal(res)
	if err != nil {
		return respondError(c, err)
	}
	if cacheKey != "" {
		if err := pc.services.Responses.Set(ctx, cacheKey, string(body), idempotencyTTL); err != nil {
			log.Warnf("[API] Failed to store idempotent reply %s: %v", cacheKey, err)
		}
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(body)
}

// HandleHistory lists the audit trail of one installment.
func (pc *PaymentController) HandleHistory(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "Invalid payment id")
	}
	entries, err := pc.services.Engine.History(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"payment_id": id,
		"history":    entries,
	})
}

// respondResult writes a decision. A decision stored without a completed
// status projection is answered with 202.
func respondResult(c *fiber.Ctx, res *reconciliation.Result, err error) error {
	if err != nil {
		if res != nil && errors.Is(err, reconciliation.ErrProjection) {
			log.Errorf("[API] Payment %d: %v", res.PaymentID, err)
			return c.Status(fiber.StatusAccepted).JSON(res)
		}
		return respondError(c, err)
	}
	return c.JSON(res)
}

// Adapter functions for the router

func HandleAttachProof(c *fiber.Ctx) error { return paymentController.HandleAttachProof(c) }

func HandleValidatePayment(c *fiber.Ctx) error { return paymentController.HandleValidate(c) }

func HandleRejectPayment(c *fiber.Ctx) error { return paymentController.HandleReject(c) }

func HandleReinstatePayment(c *fiber.Ctx) error { return paymentController.HandleReinstate(c) }

func HandleRefundPayment(c *fiber.Ctx) error { return paymentController.HandleRefund(c) }

func HandleValidateBatch(c *fiber.Ctx) error { return paymentController.HandleValidateBatch(c) }

func HandlePaymentHistory(c *fiber.Ctx) error { return paymentController.HandleHistory(c) }
