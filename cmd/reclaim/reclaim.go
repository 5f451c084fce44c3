package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"golang.org/x/term"

	"solana-rent-reclaimer/internal/app"
	"solana-rent-reclaimer/internal/classifier"
	"solana-rent-reclaimer/internal/credential"
	"solana-rent-reclaimer/internal/domain"
	"solana-rent-reclaimer/internal/session"
)

// cliRequester identifies the single local user to the session manager.
const cliRequester = "cli"

// maxLine bounds one line of interactive input.
const maxLine = 512

// scan prints the candidates of wallet and the refund estimate. Nothing is signed or sent.
func scan(ctx context.Context, out io.Writer, a *app.App, address string) error {
	wallet, err := domain.ParseWalletAddress(address)
	if err != nil {
		return err
	}
	descs, err := a.Scanner.Scan(ctx, wallet)
	if err != nil {
		return err
	}
	res := classifier.Classify(classifier.Policy{
		ReclaimSingletons: a.Config.Reclaim.ReclaimSingletons,
		SkipFrozen:        a.Config.Reclaim.SkipFrozen,
	}, descs)
	q := a.Estimator.Quote(res.Count())

	fmt.Fprintf(out, "Wallet %s: %d token accounts scanned\n\n", wallet, len(descs))
	if res.Count() == 0 {
		fmt.Fprintln(out, "No reclaimable accounts.")
	} else {
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ACCOUNT\tMINT\tREASON")
		for _, c := range res.Candidates {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Account.Address, c.Account.Mint, c.Reason)
		}
		_ = tw.Flush()
	}

	if len(res.Skipped) > 0 {
		counts := make(map[classifier.SkipReason]int)
		for _, s := range res.Skipped {
			counts[s.Reason]++
		}
		reasons := make([]string, 0, len(counts))
		for r := range counts {
			reasons = append(reasons, string(r))
		}
		sort.Strings(reasons)
		fmt.Fprintln(out)
		for _, r := range reasons {
			fmt.Fprintf(out, "Skipped %d account(s): %s\n", counts[classifier.SkipReason(r)], r)
		}
	}

	fmt.Fprintf(out, "\nEstimated refund: %s (%d × %d lamports)\n", q.Total, q.Candidates, uint64(q.RefundPerAccount))
	return nil
}

// runInteractive drives one session: quote, confirmation, credential, report.
func runInteractive(ctx context.Context, p *prompter, m *session.Manager, address string) error {
	q, err := m.SubmitWallet(ctx, cliRequester, address)
	if err != nil {
		return err
	}
	if q.NoReclaimableAccounts {
		fmt.Fprintf(p.out, "Wallet %s has no reclaimable accounts.\n", q.Wallet)
		return nil
	}

	fmt.Fprintln(p.out, q.Prompt)
	answer, err := p.line("> ")
	if err != nil {
		_ = m.Cancel(cliRequester)
		return err
	}
	res, err := m.Confirm(cliRequester, string(answer))
	if err != nil {
		return err
	}
	if res == session.ConfirmCancelled {
		fmt.Fprintln(p.out, "Cancelled. Nothing was sent.")
		return nil
	}

	for {
		secret, err := p.secret("Secret key (base58): ")
		if err != nil {
			_ = m.Cancel(cliRequester)
			return err
		}
		report, err := m.ProvideCredential(ctx, cliRequester, secret)
		if report != nil {
			printReport(p.out, report)
			return err
		}
		if errors.Is(err, domain.ErrCredentialFormat) || errors.Is(err, domain.ErrCredentialWalletMismatch) {
			fmt.Fprintln(p.out, err)
			if _, serr := m.Status(cliRequester); serr == nil {
				continue
			}
		}
		return err
	}
}

func printReport(out io.Writer, r *domain.Report) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BATCH\tSTATUS\tACCOUNTS\tSIGNATURE\tERROR")
	for _, o := range r.Outcomes {
		status := o.Status.String()
		if o.Reused {
			status += " (earlier submission)"
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\n", o.Index, status, o.Accounts, o.Signature, o.Error)
	}
	_ = tw.Flush()
	fmt.Fprintf(out, "\nClosed %d account(s), recovered %s.\n", r.AccountsClosed, r.RefundedLamports)
	if r.TimedOutBatches > 0 {
		fmt.Fprintln(out, "Some batches were not confirmed in time; check their signatures before retrying.")
	}
}

// prompter reads interactive input without buffering beyond the current
// line, so a secret never lingers in a reader's internal buffer.
type prompter struct {
	in  io.Reader
	out io.Writer
}

func (p *prompter) line(prompt string) ([]byte, error) {
	fmt.Fprint(p.out, prompt)
	return readLine(p.in, maxLine)
}

// secret reads the credential without echo when stdin is a terminal.
// Callers own the returned slice and must wipe it.
func (p *prompter) secret(prompt string) ([]byte, error) {
	fmt.Fprint(p.out, prompt)
	if f, ok := p.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(p.out)
		return b, err
	}
	return readLine(p.in, maxLine)
}

// readLine reads one byte at a time up to a newline. The newline and a
// trailing carriage return are dropped. On overflow the partial line is wiped.
func readLine(r io.Reader, max int) ([]byte, error) {
	buf := make([]byte, 0, max)
	var one [1]byte
	for {
		n, err := r.Read(one[:])
		if n == 1 {
			if one[0] == '\n' {
				break
			}
			if len(buf) == max {
				credential.Wipe(buf)
				return nil, fmt.Errorf("input line longer than %d bytes", max)
			}
			buf = append(buf, one[0])
		}
		if errors.Is(err, io.EOF) {
			if len(buf) == 0 {
				return nil, io.ErrUnexpectedEOF
			}
			break
		}
		if err != nil {
			credential.Wipe(buf)
			return nil, err
		}
	}
	one[0] = 0
	if len(buf) > 0 && buf[len(buf)-1] == '\r' {
		buf[len(buf)-1] = 0
		buf = buf[:len(buf)-1]
	}
	return buf, nil
}
