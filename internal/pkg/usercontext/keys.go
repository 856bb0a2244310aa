package usercontext

// Shared Locals keys and headers used across controllers and middlewares
const (
	KeyActor     = "ACTOR_CONTEXT"
	HeaderActor  = "X-Actor-ID"
	HeaderAdmin  = "X-Actor-Role"
	RoleAdmin    = "admin"
	MaxActorSize = 100
)
