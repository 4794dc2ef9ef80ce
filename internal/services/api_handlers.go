package services

import (
	"errors"
	"time"

	"imageforge/internal/auth"
	"imageforge/internal/clients/pollinations"
	"imageforge/internal/clients/replicate"
	"imageforge/internal/library"
	"imageforge/internal/store"
	"imageforge/types"

	"github.com/gofiber/fiber/v2"
)

func (a *Api) Health() fiber.Handler {
	return func(ctx *fiber.Ctx) error {

		return ctx.Status(fiber.StatusOK).JSON(types.HealthResponse{
			Status:    fiber.StatusOK,
			TimeStamp: time.Now().Unix(),
		})
	}
}

// session resolves the optional bearer session. An unconfigured identity
// provider means "no session", not an error; a present-but-bad token is 401.
func (a *Api) session(ctx *fiber.Ctx) (*auth.Session, error) {
	sess, err := a.verifier.FromHeader(ctx.Get(fiber.HeaderAuthorization))
	if err != nil {
		if errors.Is(err, auth.ErrNotConfigured) {
			return nil, nil
		}
		return nil, err
	}
	return sess, nil
}

// requireSession is for history routes, which are meaningless anonymously.
func (a *Api) requireSession(ctx *fiber.Ctx) (*auth.Session, error) {
	sess, err := a.session(ctx)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, auth.ErrInvalidSession
	}
	return sess, nil
}

func (a *Api) GenerateImage() fiber.Handler {
	return func(ctx *fiber.Ctx) error {

		var requestBody types.GenerateRequest
		if err := ctx.BodyParser(&requestBody); err != nil {
			return ctx.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{
				Error:   err.Error(),
				Message: "invalid body",
			})
		}

		sess, err := a.session(ctx)
		if err != nil {
			return ctx.Status(fiber.StatusUnauthorized).JSON(types.ErrorResponse{
				Error:   err.Error(),
				Message: "Session expired. Sign in again to keep saving images.",
			})
		}

		req := types.GenerationRequest{
			Prompt:         requestBody.Prompt,
			AspectRatio:    types.NormalizeAspectRatio(requestBody.AspectRatio),
			NegativePrompt: requestBody.NegativePrompt,
			GuidanceScale:  requestBody.GuidanceScale,
			InferenceSteps: requestBody.InferenceSteps,
			Scheduler:      requestBody.Scheduler,
			Seed:           requestBody.Seed,
			SourceImage:    requestBody.SourceImage,
			Strength:       requestBody.Strength,
		}

		userID := ""
		if sess != nil {
			userID = sess.UserID
		}

		img, err := a.gen.Generate(ctx.Context(), req, userID, requestBody.Style, requestBody.ClientID)
		if err != nil {
			status, message := generationError(err)
			HttpLogger("generate", ctx).Warn("generation failed", "status", status, "err", err)
			return ctx.Status(status).JSON(types.ErrorResponse{
				Error:   err.Error(),
				Message: message,
			})
		}

		return ctx.Status(fiber.StatusOK).JSON(img)
	}
}

// generationError turns provider failures into a status code plus a short
// actionable message instead of leaking raw status codes to the UI.
func generationError(err error) (int, string) {
	switch {
	case errors.Is(err, ErrEmptyPrompt),
		errors.Is(err, pollinations.ErrEmptyPrompt),
		errors.Is(err, replicate.ErrEmptyPrompt):
		return fiber.StatusBadRequest, "Prompt is required. Enter a prompt and try again."
	case errors.Is(err, ErrNoProvider), errors.Is(err, replicate.ErrMissingToken):
		return fiber.StatusServiceUnavailable, "Image generation is not configured. Set a provider API token and restart."
	case errors.Is(err, replicate.ErrInvalidToken):
		return fiber.StatusUnauthorized, "Invalid provider credential. Check the configured API token."
	case errors.Is(err, replicate.ErrInsufficientCredits):
		return fiber.StatusPaymentRequired, "Insufficient credits. Top up your provider account and try again."
	case errors.Is(err, replicate.ErrRateLimited):
		return fiber.StatusTooManyRequests, "Rate limit exceeded. Please wait a moment and try again."
	case errors.Is(err, replicate.ErrPollTimeout):
		return fiber.StatusGatewayTimeout, "Generation timed out. Please try again."
	case errors.Is(err, replicate.ErrGenerationCanceled):
		return fiber.StatusBadGateway, "Generation was canceled by the provider. Please try again."
	case errors.Is(err, replicate.ErrGenerationFailed), errors.Is(err, replicate.ErrUnexpectedOutput):
		return fiber.StatusBadGateway, "The provider could not generate this image. Try a different prompt."
	}
	return fiber.StatusInternalServerError, "Image generation failed. Please try again."
}

func (a *Api) ListImages() fiber.Handler {
	return func(ctx *fiber.Ctx) error {

		sess, err := a.requireSession(ctx)
		if err != nil {
			return ctx.Status(fiber.StatusUnauthorized).JSON(types.ErrorResponse{
				Error:   err.Error(),
				Message: "Sign in to see your image history.",
			})
		}

		images, err := a.lib.List(sess.UserID)
		if err != nil {
			return ctx.Status(fiber.StatusInternalServerError).JSON(types.ErrorResponse{
				Error:   err.Error(),
				Message: "Could not load your image history.",
			})
		}

		return ctx.Status(fiber.StatusOK).JSON(types.ListImagesResponse{Images: images})
	}
}

func (a *Api) SaveImage() fiber.Handler {
	return func(ctx *fiber.Ctx) error {

		sess, err := a.requireSession(ctx)
		if err != nil {
			return ctx.Status(fiber.StatusUnauthorized).JSON(types.ErrorResponse{
				Error:   err.Error(),
				Message: "Sign in to save images.",
			})
		}

		var requestBody types.SaveImageRequest
		if err := ctx.BodyParser(&requestBody); err != nil {
			return ctx.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{
				Error:   err.Error(),
				Message: "invalid body",
			})
		}
		if requestBody.ImageURL == "" {
			return ctx.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{
				Error:   "imageUrl is required",
				Message: "Nothing to save yet. Generate an image first.",
			})
		}

		record, err := a.lib.Save(ctx.Context(), sess.UserID, requestBody.Prompt, requestBody.ImageURL,
			types.NormalizeAspectRatio(requestBody.AspectRatio), requestBody.Style)
		if err != nil {
			if errors.Is(err, library.ErrSaveInFlight) {
				return ctx.Status(fiber.StatusAccepted).JSON(types.ErrorResponse{
					Message: "This image is already being saved.",
				})
			}
			return ctx.Status(fiber.StatusInternalServerError).JSON(types.ErrorResponse{
				Error:   err.Error(),
				Message: "Image generated but not saved. Try saving again.",
			})
		}

		return ctx.Status(fiber.StatusOK).JSON(record)
	}
}

func (a *Api) DeleteImage() fiber.Handler {
	return func(ctx *fiber.Ctx) error {

		sess, err := a.requireSession(ctx)
		if err != nil {
			return ctx.Status(fiber.StatusUnauthorized).JSON(types.ErrorResponse{
				Error:   err.Error(),
				Message: "Sign in to manage your image history.",
			})
		}

		if err := a.lib.Delete(ctx.Context(), sess.UserID, ctx.Params("id")); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ctx.Status(fiber.StatusNotFound).JSON(types.ErrorResponse{
					Error:   err.Error(),
					Message: "That image is no longer in your history.",
				})
			}
			return ctx.Status(fiber.StatusInternalServerError).JSON(types.ErrorResponse{
				Error:   err.Error(),
				Message: "Could not delete the image. Please try again.",
			})
		}

		return ctx.SendStatus(fiber.StatusNoContent)
	}
}

func (a *Api) ToggleFavorite() fiber.Handler {
	return func(ctx *fiber.Ctx) error {

		sess, err := a.requireSession(ctx)
		if err != nil {
			return ctx.Status(fiber.StatusUnauthorized).JSON(types.ErrorResponse{
				Error:   err.Error(),
				Message: "Sign in to manage your image history.",
			})
		}

		record, err := a.lib.ToggleFavorite(sess.UserID, ctx.Params("id"))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ctx.Status(fiber.StatusNotFound).JSON(types.ErrorResponse{
					Error:   err.Error(),
					Message: "That image is no longer in your history.",
				})
			}
			return ctx.Status(fiber.StatusInternalServerError).JSON(types.ErrorResponse{
				Error:   err.Error(),
				Message: "Could not update the favorite. Please try again.",
			})
		}

		return ctx.Status(fiber.StatusOK).JSON(record)
	}
}
