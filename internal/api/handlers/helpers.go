package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"foodgram-backend/domain"
)

// currentUserID reads the authenticated user id set by the auth
// middleware. Returns 0 for anonymous requests.
func currentUserID(c *fiber.Ctx) uint {
	raw, ok := c.Locals("user_id").(string)
	if !ok {
		return 0
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0
	}
	return uint(id)
}

func paramID(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return 0, domain.ErrParseID
	}
	return uint(id), nil
}

func parsePagination(c *fiber.Ctx) (int, int) {
	page, err := strconv.Atoi(c.Query("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	limit, err := strconv.Atoi(c.Query("limit", "6"))
	if err != nil || limit < 1 {
		limit = 6
	}
	return page, limit
}

// statusForError maps service errors onto HTTP statuses. Payload and
// conflict errors answer 400, missing resources 404, ownership 403.
func statusForError(err error) int {
	var vErr *domain.ValidationError
	switch {
	case errors.As(err, &vErr):
		return fiber.StatusBadRequest
	case errors.Is(err, domain.ErrRecipeNotFound),
		errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrIngredientNotFound),
		errors.Is(err, domain.ErrTagNotFound),
		errors.Is(err, domain.ErrShortLinkNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, domain.ErrUnauthorizedRecipeAccess),
		errors.Is(err, domain.ErrUserNotAllowed):
		return fiber.StatusForbidden
	case errors.Is(err, domain.ErrTokenExpired),
		errors.Is(err, domain.ErrTokenInvalid),
		errors.Is(err, domain.ErrTokenNotFound),
		errors.Is(err, domain.ErrCredentialsInvalid):
		return fiber.StatusUnauthorized
	case errors.Is(err, domain.ErrAlreadyInShoppingCart),
		errors.Is(err, domain.ErrNotInShoppingCart),
		errors.Is(err, domain.ErrAlreadyFavorited),
		errors.Is(err, domain.ErrNotFavorited),
		errors.Is(err, domain.ErrAlreadySubscribed),
		errors.Is(err, domain.ErrNotSubscribed),
		errors.Is(err, domain.ErrSelfSubscription),
		errors.Is(err, domain.ErrEmailAlreadyRegistered),
		errors.Is(err, domain.ErrUsernameTaken),
		errors.Is(err, domain.ErrWrongCurrentPassword),
		errors.Is(err, domain.ErrParseID):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

func paginated(items any, page, limit int, count int64) fiber.Map {
	return fiber.Map{
		"items": items,
		"pagination": fiber.Map{
			"page":        page,
			"limit":       limit,
			"total":       count,
			"total_pages": (count + int64(limit) - 1) / int64(limit),
		},
	}
}
