// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package ledger records ballots and administers the election.

# Casting

CastVote checks, in one transaction, that the voter exists, is verified and
has not voted, that the election window is open and that the candidate
exists. It then flips has_voted with a guarded UPDATE and increments the
candidate's tally:

	UPDATE voter SET has_voted = TRUE WHERE id = $1 AND has_voted = FALSE

The affected-row count decides concurrent attempts; losers get
ErrAlreadyVoted and their transaction rolls back. On Postgres the voter row
is also locked FOR UPDATE and the election row FOR SHARE, so a committed
EmergencyStop is never overtaken.

# Administration

ResetElection and EmergencyStop are all-or-nothing. PublishResults gates
Results; Tally is the unrestricted view for administrators.

# Errors

Domain rejections are sentinel errors (ErrAlreadyVoted, ErrNotVerified, ...).
Any other storage failure is wrapped in ErrTransientStorage.
*/
package ledger
