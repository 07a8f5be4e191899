package postgres

import "github.com/jackc/pgx/v4/pgxpool"

// PoolStats adapts a pgxpool to the storage stats sampler.
type PoolStats struct {
	Pool *pgxpool.Pool
}

func (p PoolStats) Stats() (total, idle, inUse int32) {
	st := p.Pool.Stat()
	return st.TotalConns(), st.IdleConns(), st.AcquiredConns()
}
