package settings

// DB config keys and defaults for settings.
const (
	// SiteNameKey is the DB config key for the UI site name.
	SiteNameKey = "SITE_NAME"
	// DefaultSiteName is the fallback UI site name.
	DefaultSiteName = "AI Assistant Hub"
	// RegisterPointsKey holds the starting balance granted at registration.
	RegisterPointsKey = "REGISTER_POINTS"
	// DefaultRegisterPoints is the fallback starting balance.
	DefaultRegisterPoints = 100
	// RequireInviteCodeKey toggles mandatory invite codes at registration.
	RequireInviteCodeKey = "REQUIRE_INVITE_CODE"
	// DefaultRequireInviteCode keeps registration open.
	DefaultRequireInviteCode = false
	// RateLimitKey caps dispatch requests per user per minute.
	RateLimitKey = "RATE_LIMIT"
	// DefaultRateLimit is the fallback rate limit (0 means unlimited).
	DefaultRateLimit = 0
	// HonorCustomPointsCostKey makes dispatch charge per-user cost overrides.
	HonorCustomPointsCostKey = "HONOR_CUSTOM_POINTS_COST"
	// DefaultHonorCustomPointsCost charges the assistant's flat cost.
	DefaultHonorCustomPointsCost = false
)

// Kind describes the JSON shape a setting value must have.
type Kind int

const (
	KindString Kind = iota
	KindNonNegativeInt
	KindBool
)

// Known lists every setting the admin API accepts, keyed by name.
var Known = map[string]Kind{
	SiteNameKey:              KindString,
	RegisterPointsKey:        KindNonNegativeInt,
	RequireInviteCodeKey:     KindBool,
	RateLimitKey:             KindNonNegativeInt,
	HonorCustomPointsCostKey: KindBool,
}
