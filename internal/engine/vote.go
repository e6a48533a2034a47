package engine

import "github.com/stealth-startup/openexchange/internal/ledger"

// maxExpireYear is the last year a snapshot can record.
const maxExpireYear = 9999

// createVote opens a vote lasting amount mod 10^8 days. Only the issuer may
// open votes, and the vote must expire before year 10000. The amount sent
// is returned as change on success.
func createVote(in *Instruction) (ledger.Request, error) {
	a := in.Asset
	req := &ledger.CreateVote{
		Header: in.header(ledger.KindCreateVote),
		Days:   in.Amount % OneHundredMillion,
	}
	if in.Sender != a.Addresses.Issuer {
		req.Reject(ledger.StatusFatal, ledger.MsgSenderIsNotIssuer)
		return req, nil
	}
	if req.Days == 0 {
		req.Reject(ledger.StatusFatal, ledger.MsgLastZeroDays)
		return req, nil
	}

	expire := in.BlockTime.AddDate(0, 0, int(req.Days))
	if expire.Year() > maxExpireYear {
		req.Reject(ledger.StatusFatal, ledger.MsgTooManyDays)
		return req, nil
	}

	req.VoteIndex = int64(len(a.Votes)) + 1
	req.ExpireTime = expire
	a.Votes[req.VoteIndex] = &ledger.Vote{
		StartTime:  in.BlockTime,
		ExpireTime: req.ExpireTime,
		Stat:       make(map[int64]int64),
	}
	req.AddPayment(in.Sender, in.Amount)
	req.Status = ledger.StatusOK
	return req, nil
}

// userVote casts a ballot weighted by the voter's total holding at the time
// of the vote. Once the voter and the vote are known to exist the amount
// sent is returned as change, including when the vote is closed or the
// voter has already voted; those two cases end not-as-expected and leave
// the tally untouched.
func userVote(in *Instruction) (ledger.Request, error) {
	a := in.Asset
	req := &ledger.UserVote{Header: in.header(ledger.KindUserVote)}
	req.VoteIndex, req.Option = DecodeVote(in.Amount)

	voter, ok := a.Users[in.Sender]
	if !ok || voter.Total == 0 {
		req.Reject(ledger.StatusFatal, ledger.MsgSenderIsNotLegit)
		return req, nil
	}
	vote, ok := a.Votes[req.VoteIndex]
	if !ok {
		req.Reject(ledger.StatusFatal, ledger.MsgVoteDoesNotExist)
		return req, nil
	}
	req.AddPayment(in.Sender, in.Amount)

	if vote.Closed(in.BlockTime) {
		req.Reject(ledger.StatusNotAsExpected, ledger.MsgVoteClosed)
		return req, nil
	}
	if _, voted := voter.Votes[req.VoteIndex]; voted {
		req.Reject(ledger.StatusNotAsExpected, ledger.MsgAlreadyVoted)
		return req, nil
	}

	voter.Votes[req.VoteIndex] = req.Option
	vote.Stat[req.Option] += voter.Total
	req.Weight = voter.Total
	req.Status = ledger.StatusOK
	return req, nil
}
