package store

import (
	"context"
	"database/sql/driver"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mattn/go-sqlite3"
)

// connector opens connections through a store-private driver so that the
// custom functions bound to this store's random source never leak into the
// global "sqlite3" driver registration.
type connector struct {
	drv *sqlite3.SQLiteDriver
	dsn string
}

func (c *connector) Connect(context.Context) (driver.Conn, error) {
	return c.drv.Open(c.dsn)
}

func (c *connector) Driver() driver.Driver {
	return c.drv
}

func newDriver(rng *Random) *sqlite3.SQLiteDriver {
	return &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return registerFunctions(conn, rng)
		},
	}
}

// sqlFunction is a custom SQL function installed on every connection.
type sqlFunction struct {
	name string
	impl any
	pure bool
}

func registerFunctions(conn *sqlite3.SQLiteConn, rng *Random) error {
	fns := []sqlFunction{
		{"norm2", vectorFunc(norm2), true},
		{"pseudorapidity", vectorFunc(pseudorapidity), true},
		{"azimuthal", vectorFunc(azimuthal), true},
		{"polar", vectorFunc(polar), true},
		{"propagation_charge", sqlPropagationCharge, true},
		{"random_uniform", rng.Uniform, false},
		{"random_normal", rng.Normal, false},
	}
	for _, fn := range fns {
		if err := conn.RegisterFunc(fn.name, fn.impl, fn.pure); err != nil {
			return fmt.Errorf("register sql function %s: %w", fn.name, err)
		}
	}
	return nil
}

// number converts a SQL argument to float64. INTEGER, REAL and numeric
// TEXT are accepted; NULL and anything else report false.
func number(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	case []byte:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(x)), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// vectorFunc adapts a function of the three components of a vector to SQL
// arguments of any numeric storage class. A NULL component yields NULL.
func vectorFunc(fn func(x, y, z float64) float64) func(x, y, z any) any {
	return func(x, y, z any) any {
		fx, okx := number(x)
		fy, oky := number(y)
		fz, okz := number(z)
		if !okx || !oky || !okz {
			return nil
		}
		return fn(fx, fy, fz)
	}
}

func norm2(x, y, z float64) float64 {
	return math.Sqrt(x*x + y*y + z*z)
}

func pseudorapidity(x, y, z float64) float64 {
	p := norm2(x, y, z)
	if p == 0 {
		return 0
	}
	if p == math.Abs(z) {
		return math.Copysign(math.Inf(1), z)
	}
	return 0.5 * math.Log((p+z)/(p-z))
}

func azimuthal(x, y, _ float64) float64 {
	return math.Atan2(y, x)
}

func polar(x, y, z float64) float64 {
	return math.Atan2(math.Hypot(x, y), z)
}

// chargedSpecies lists the |pid| of species propagated through the
// detector, with the charge of the positive pid. Photons and neutrons are
// propagated as neutral.
var chargedSpecies = map[int64]int64{
	11:   -1, // e-
	13:   -1, // mu-
	15:   -1, // tau-
	211:  1,  // pi+
	321:  1,  // K+
	2212: 1,  // p
	22:   0,  // gamma
	2112: 0,  // n
}

// propagationCharge returns the electric charge of a particle that is
// propagated by the detector simulation. ok is false for any other species.
func propagationCharge(pid int64) (charge int64, ok bool) {
	abs := pid
	if abs < 0 {
		abs = -abs
	}
	q, ok := chargedSpecies[abs]
	if !ok {
		return 0, false
	}
	if pid < 0 {
		return -q, true
	}
	return q, true
}

// sqlPropagationCharge is propagation_charge(pid). A REAL pid is truncated;
// NULL, non-numeric input and untracked species give NULL.
func sqlPropagationCharge(pid any) any {
	f, ok := number(pid)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	q, ok := propagationCharge(int64(f))
	if !ok {
		return nil
	}
	return q
}
