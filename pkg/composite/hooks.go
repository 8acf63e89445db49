package composite

import (
	"context"
	"fmt"
	"log/slog"
)

// Hooks extend the metadata service at fixed points of the object
// lifecycle without changing the core code.
type Hooks struct {
	// BeforeSubmit runs after validation and may reject or amend the
	// document before it is stored.
	BeforeSubmit []BeforeSubmitHook

	// AfterSeal runs once per object, when it first becomes visible.
	AfterSeal []AfterSealHook

	OnError []ErrorHook
}

// HookContext carries information through the hook chain
type HookContext struct {
	Context   context.Context
	Metadata  map[string]interface{} // Custom metadata passed between hooks
	StopChain bool                   // Set to true to stop processing remaining hooks
}

// NewHookContext creates a new hook context
func NewHookContext(ctx context.Context) *HookContext {
	return &HookContext{
		Context:  ctx,
		Metadata: make(map[string]interface{}),
	}
}

// BeforeSubmitHook is called before a document is stored as pending
type BeforeSubmitHook func(hctx *HookContext, doc *Document) error

// AfterSealHook is called after a document is sealed
type AfterSealHook func(hctx *HookContext, doc *Document) error

// ErrorHook is called when an operation fails
type ErrorHook func(hctx *HookContext, operation string, err error)

// Merge appends other's hooks after h's.
func (h *Hooks) Merge(other *Hooks) {
	if other == nil {
		return
	}
	h.BeforeSubmit = append(h.BeforeSubmit, other.BeforeSubmit...)
	h.AfterSeal = append(h.AfterSeal, other.AfterSeal...)
	h.OnError = append(h.OnError, other.OnError...)
}

func (h *Hooks) executeBeforeSubmit(ctx context.Context, doc *Document) error {
	if len(h.BeforeSubmit) == 0 {
		return nil
	}

	hctx := NewHookContext(ctx)
	for _, hook := range h.BeforeSubmit {
		if err := hook(hctx, doc); err != nil {
			return err
		}
		if hctx.StopChain {
			break
		}
	}
	return nil
}

func (h *Hooks) executeAfterSeal(ctx context.Context, doc *Document) error {
	if len(h.AfterSeal) == 0 {
		return nil
	}

	hctx := NewHookContext(ctx)
	for _, hook := range h.AfterSeal {
		if err := hook(hctx, doc); err != nil {
			return err
		}
		if hctx.StopChain {
			break
		}
	}
	return nil
}

func (h *Hooks) executeOnError(ctx context.Context, operation string, err error) {
	if len(h.OnError) == 0 {
		return
	}

	hctx := NewHookContext(ctx)
	for _, hook := range h.OnError {
		hook(hctx, operation, err)
		if hctx.StopChain {
			break
		}
	}
}

// LoggingHook logs sealed objects and failed operations.
func LoggingHook(logger *slog.Logger) *Hooks {
	return &Hooks{
		AfterSeal: []AfterSealHook{
			func(hctx *HookContext, doc *Document) error {
				logger.InfoContext(hctx.Context, "object sealed",
					"object_id", doc.ID, "type_tag", doc.TypeTag, "members", len(doc.Members))
				return nil
			},
		},
		OnError: []ErrorHook{
			func(hctx *HookContext, operation string, err error) {
				logger.WarnContext(hctx.Context, "operation failed", "op", operation, "err", err)
			},
		},
	}
}

// ValidationHook adds custom validation
func ValidationHook(validator func(*Document) error) BeforeSubmitHook {
	return func(hctx *HookContext, doc *Document) error {
		return validator(doc)
	}
}

// AllowTypeTags rejects documents whose type tag is not listed.
func AllowTypeTags(tags ...string) BeforeSubmitHook {
	allowed := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		allowed[t] = struct{}{}
	}
	return func(hctx *HookContext, doc *Document) error {
		if _, ok := allowed[doc.TypeTag]; !ok {
			return fmt.Errorf("%w: type tag %q is not allowed", ErrInvalidDocument, doc.TypeTag)
		}
		return nil
	}
}
