package claims

import (
	"context"
	"fmt"

	"github.com/cabshq/cabs/core"
	"github.com/cabshq/cabs/internal/contracts"
)

// QuotaEnforcer checks a user's claimed storage against their quota before
// a new claim is admitted. It runs inside the same transaction as the
// claim write it's guarding, so a quota check and the claim it authorizes
// can never be separated by a race - see DESIGN.md's resolution of the
// delete/add race open question.
type QuotaEnforcer struct {
	claims Table
	source contracts.QuotaSource
}

// NewQuotaEnforcer returns a QuotaEnforcer. source may be nil, in which
// case every user's quota comes from core.User.Quota alone.
func NewQuotaEnforcer(source contracts.QuotaSource) QuotaEnforcer {
	return QuotaEnforcer{claims: New(), source: source}
}

// quotaFor resolves user's effective quota: the QuotaSource's answer if it
// has one, otherwise the quota recorded on the User itself. A quota of 0
// means unlimited.
func (q QuotaEnforcer) quotaFor(ctx context.Context, user core.User) (int64, error) {
	if q.source != nil {
		if quota, ok, err := q.source.UserQuota(ctx, user.ID); err != nil {
			return 0, err
		} else if ok {
			return quota, nil
		}
	}
	return user.Quota, nil
}

// Check returns core.ErrQuotaExceeded if admitting a new claim of
// additionalBytes (on top of a claim the user doesn't already hold for this
// digest) would push user over their quota. alreadyClaimed should be true
// when the user already claims this exact digest, since re-claiming
// content already charged to them doesn't add to their usage.
func (q QuotaEnforcer) Check(ctx context.Context, tx contracts.Tx, user core.User, additionalBytes int64, alreadyClaimed bool) error {
	if alreadyClaimed {
		return nil
	}
	quota, err := q.quotaFor(ctx, user)
	if err != nil {
		return err
	}
	if quota <= 0 {
		return nil
	}
	usage, err := q.claims.UserUsage(ctx, tx, user.ID)
	if err != nil {
		return err
	}
	if usage+additionalBytes > quota {
		return fmt.Errorf("%w: user %s usage %d + %d exceeds quota %d", core.ErrQuotaExceeded, user.ID, usage, additionalBytes, quota)
	}
	return nil
}
