package store

// Repos bundles one repository per entity, built once in the composition
// root and handed to every domain component that needs persistence.
type Repos struct {
	Users        UserRepository
	Tokens       AccessTokenRepository
	Transactions TransactionRepository
	Sessions     ProxySessionRepository
	Bundles      TokenBundleRepository
	AuditLogs    AuditLogRepository
}

// NewPostgresRepos builds a Repos backed entirely by Postgres.
func NewPostgresRepos() *Repos {
	return &Repos{
		Users:        NewPostgresUserRepository(),
		Tokens:       NewPostgresAccessTokenRepository(),
		Transactions: NewPostgresTransactionRepository(),
		Sessions:     NewPostgresProxySessionRepository(),
		Bundles:      NewPostgresTokenBundleRepository(),
		AuditLogs:    NewPostgresAuditLogRepository(),
	}
}
