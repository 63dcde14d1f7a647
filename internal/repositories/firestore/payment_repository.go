package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/Prince-Affedzie/Freshy-Food-Backend/internal/domain"
	pfirestore "github.com/Prince-Affedzie/Freshy-Food-Backend/internal/platform/firestore"
	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/platform/pagination"
	"github.com/Prince-Affedzie/Freshy-Food-Backend/internal/repositories"
)

const paymentCollection = "payments"

// PaymentRepository persists payment records in Firestore.
type PaymentRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[paymentDocument]
}

// NewPaymentRepository constructs a Firestore-backed payment repository.
func NewPaymentRepository(provider *pfirestore.Provider) (*PaymentRepository, error) {
	if provider == nil {
		return nil, errors.New("payment repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[paymentDocument](provider, paymentCollection)
	return &PaymentRepository{provider: provider, base: base}, nil
}

// Insert creates the payment document keyed by its gateway transaction reference.
// Recording a reference twice yields a conflict.
func (r *PaymentRepository) Insert(ctx context.Context, payment domain.Payment) error {
	if r == nil || r.base == nil {
		return errors.New("payment repository not initialised")
	}
	reference, err := paymentDocumentID(payment.TransactionRef)
	if err != nil {
		return err
	}
	if id := strings.TrimSpace(payment.ID); id != "" && id != reference {
		return fmt.Errorf("payment id %q must equal its transaction reference %q", id, reference)
	}
	_, err = r.base.Create(ctx, reference, newPaymentDocument(payment))
	return err
}

// Update overwrites status and refund fields of an existing payment.
func (r *PaymentRepository) Update(ctx context.Context, payment domain.Payment) error {
	if r == nil || r.base == nil {
		return errors.New("payment repository not initialised")
	}
	if strings.TrimSpace(payment.ID) == "" {
		return errors.New("payment id is required")
	}
	doc := newPaymentDocument(payment)
	_, err := r.base.Update(ctx, payment.ID, []firestore.Update{
		{Path: "status", Value: doc.Status},
		{Path: "refundedAt", Value: doc.RefundedAt},
		{Path: "updatedAt", Value: doc.UpdatedAt},
	})
	return err
}

// ClaimForOrder sets orderId inside a transaction when the payment is unclaimed or already claimed by orderID.
func (r *PaymentRepository) ClaimForOrder(ctx context.Context, paymentID, orderID string, at time.Time) error {
	return r.setOrderLink(ctx, "payments.claim", paymentID, orderID, at, func(current string) (string, error) {
		if current != "" && current != orderID {
			return "", pfirestore.Conflict("payments.claim", "payment %s already settles order %s", paymentID, current)
		}
		return orderID, nil
	})
}

// ReleaseOrderClaim clears orderId when it still points at orderID.
func (r *PaymentRepository) ReleaseOrderClaim(ctx context.Context, paymentID, orderID string, at time.Time) error {
	return r.setOrderLink(ctx, "payments.release", paymentID, orderID, at, func(current string) (string, error) {
		if current != orderID {
			return current, nil
		}
		return "", nil
	})
}

func (r *PaymentRepository) setOrderLink(ctx context.Context, op, paymentID, orderID string, at time.Time, next func(current string) (string, error)) error {
	if r == nil || r.base == nil || r.provider == nil {
		return errors.New("payment repository not initialised")
	}
	paymentID = strings.TrimSpace(paymentID)
	orderID = strings.TrimSpace(orderID)
	if paymentID == "" || orderID == "" {
		return errors.New("payment id and order id are required")
	}
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, paymentID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return pfirestore.WrapError(op, err)
		}
		var doc paymentDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode payment %s: %w", paymentID, err)
		}
		link, err := next(doc.OrderID)
		if err != nil {
			return err
		}
		if link == doc.OrderID {
			return nil
		}
		value := any(link)
		if link == "" {
			value = firestore.Delete
		}
		return tx.Update(ref, []firestore.Update{
			{Path: "orderId", Value: value},
			{Path: "updatedAt", Value: at.UTC()},
		})
	})
	return pfirestore.WrapError(op, err)
}

// FindByID loads a payment by document id, which is its transaction reference.
func (r *PaymentRepository) FindByID(ctx context.Context, paymentID string) (domain.Payment, error) {
	if r == nil || r.base == nil {
		return domain.Payment{}, errors.New("payment repository not initialised")
	}
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return domain.Payment{}, errors.New("payment id is required")
	}
	doc, err := r.base.Get(ctx, paymentID)
	if err != nil {
		return domain.Payment{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByReference loads the payment recorded for a gateway transaction reference.
func (r *PaymentRepository) FindByReference(ctx context.Context, reference string) (domain.Payment, error) {
	id, err := paymentDocumentID(reference)
	if err != nil {
		return domain.Payment{}, err
	}
	return r.FindByID(ctx, id)
}

// paymentDocumentID rejects references Firestore cannot use as a document id.
func paymentDocumentID(reference string) (string, error) {
	reference = strings.TrimSpace(reference)
	switch {
	case reference == "":
		return "", errors.New("payment reference is required")
	case reference == "." || reference == "..", strings.Contains(reference, "/"), strings.HasPrefix(reference, "__"):
		return "", fmt.Errorf("payment reference %q is not a valid document id", reference)
	}
	return reference, nil
}

type paymentCursor struct {
	CreatedAt time.Time `json:"createdAt"`
	ID        string    `json:"id"`
}

// List returns payments newest first.
func (r *PaymentRepository) List(ctx context.Context, filter repositories.PaymentListFilter) (domain.CursorPage[domain.Payment], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Payment]{}, errors.New("payment repository not initialised")
	}
	pageSize := pagination.NormalizePageSize(filter.Pagination.PageSize)
	cursor, hasCursor, err := pagination.DecodeToken[paymentCursor](filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Payment]{}, fmt.Errorf("payment repository: %w", err)
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Payment]{}, err
	}

	query := client.Collection(paymentCollection).Query
	if userID := strings.TrimSpace(filter.UserID); userID != "" {
		query = query.Where("userId", "==", userID)
	}
	switch statuses := compactStrings(filter.Status); len(statuses) {
	case 0:
	case 1:
		query = query.Where("status", "==", statuses[0])
	default:
		query = query.Where("status", "in", statuses)
	}
	if method := strings.TrimSpace(filter.Method); method != "" {
		query = query.Where("paymentMethod", "==", method)
	}
	if from := filter.DateRange.From; from != nil {
		query = query.Where("createdAt", ">=", from.UTC())
	}
	if to := filter.DateRange.To; to != nil {
		query = query.Where("createdAt", "<=", to.UTC())
	}
	query = query.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
	if hasCursor {
		query = query.StartAfter(cursor.CreatedAt, cursor.ID)
	}
	query = query.Limit(pageSize + 1)

	iter := query.Documents(ctx)
	defer iter.Stop()

	var payments []domain.Payment
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Payment]{}, pfirestore.WrapError("payments.list", err)
		}
		decoded, err := r.base.Decode(ctx, snap)
		if err != nil {
			return domain.CursorPage[domain.Payment]{}, fmt.Errorf("decode payment %s: %w", snap.Ref.ID, err)
		}
		payments = append(payments, decoded.Data.toDomain(decoded.ID))
	}

	var nextToken string
	if len(payments) > pageSize {
		payments = payments[:pageSize]
		last := payments[len(payments)-1]
		nextToken, err = pagination.EncodeToken(paymentCursor{CreatedAt: last.CreatedAt, ID: last.ID})
		if err != nil {
			return domain.CursorPage[domain.Payment]{}, err
		}
	}
	return domain.CursorPage[domain.Payment]{Items: payments, NextPageToken: nextToken}, nil
}

type paymentDocument struct {
	OrderID           string     `firestore:"orderId,omitempty"`
	UserID            string     `firestore:"userId"`
	Amount            int64      `firestore:"amount"`
	Currency          string     `firestore:"currency"`
	Status            string     `firestore:"status"`
	Provider          string     `firestore:"provider"`
	TransactionRef    string     `firestore:"transactionRef"`
	PaymentMethod     string     `firestore:"paymentMethod,omitempty"`
	PaymentChannel    string     `firestore:"paymentChannel,omitempty"`
	MobileMoneyNumber string     `firestore:"mobileMoneyNumber,omitempty"`
	GatewayAmount     int64      `firestore:"gatewayAmount"`
	RefundedAt        *time.Time `firestore:"refundedAt"`
	CreatedAt         time.Time  `firestore:"createdAt"`
	UpdatedAt         time.Time  `firestore:"updatedAt"`
}

func newPaymentDocument(p domain.Payment) paymentDocument {
	return paymentDocument{
		OrderID:           strings.TrimSpace(p.OrderID),
		UserID:            strings.TrimSpace(p.UserID),
		Amount:            p.Amount,
		Currency:          strings.ToUpper(strings.TrimSpace(p.Currency)),
		Status:            string(p.Status),
		Provider:          strings.TrimSpace(p.Provider),
		TransactionRef:    strings.TrimSpace(p.TransactionRef),
		PaymentMethod:     strings.TrimSpace(p.PaymentMethod),
		PaymentChannel:    strings.TrimSpace(p.PaymentChannel),
		MobileMoneyNumber: strings.TrimSpace(p.MobileMoneyNumber),
		GatewayAmount:     p.GatewayAmount,
		RefundedAt:        utcPointer(p.RefundedAt),
		CreatedAt:         p.CreatedAt.UTC(),
		UpdatedAt:         p.UpdatedAt.UTC(),
	}
}

func (d paymentDocument) toDomain(id string) domain.Payment {
	return domain.Payment{
		ID:                id,
		OrderID:           d.OrderID,
		UserID:            d.UserID,
		Amount:            d.Amount,
		Currency:          d.Currency,
		Status:            domain.PaymentStatus(d.Status),
		Provider:          d.Provider,
		TransactionRef:    d.TransactionRef,
		PaymentMethod:     d.PaymentMethod,
		PaymentChannel:    d.PaymentChannel,
		MobileMoneyNumber: d.MobileMoneyNumber,
		GatewayAmount:     d.GatewayAmount,
		RefundedAt:        d.RefundedAt,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
}
