package portal

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"clientportal/internal/format"
	"clientportal/internal/model"
)

const noClientRecord = "No client record is linked to this account yet."

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func comingSoon(title string) RenderFunc {
	return func(_ context.Context, w io.Writer, _ Data, _ Viewer) error {
		_, err := fmt.Fprintf(w, "%s\nComing soon...\n", title)
		return err
	}
}

// scope client 只看自己的数据；admin 返回 nil 表示全部
func scope(v Viewer) (*uuid.UUID, bool) {
	if v.Role == model.RoleAdmin {
		return nil, true
	}
	return v.ClientID, v.ClientID != nil
}

func money(v Viewer, d decimal.Decimal) string {
	code := v.Currency
	if code == "" {
		code = "USD"
	}
	return format.FormatCurrency(d, code)
}

func optDate(d *model.Date) string {
	if d == nil {
		return "-"
	}
	return format.FormatDate(d.Time, format.DateShort)
}

func renderAdminDashboard(ctx context.Context, w io.Writer, data Data, v Viewer) error {
	stats, err := data.Dashboard(ctx, model.RoleAdmin, v.UserID)
	if err != nil {
		return err
	}
	if stats == nil || stats.Admin == nil {
		_, err := fmt.Fprintln(w, "No statistics available.")
		return err
	}
	a := stats.Admin

	tw := newTable(w)
	fmt.Fprintf(tw, "Total Clients\t%d\n", a.TotalClients)
	fmt.Fprintf(tw, "Active Projects\t%d\n", a.ActiveProjects)
	fmt.Fprintf(tw, "Pending Requests\t%d\n", a.PendingRequests)
	fmt.Fprintf(tw, "Total Revenue\t%s\n", money(v, a.TotalRevenue))
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w, "\nRecent Projects")
	if err := writeProjects(w, a.RecentProjects, true); err != nil {
		return err
	}
	fmt.Fprintln(w, "\nRecent Invoices")
	return writeInvoices(w, v, a.RecentInvoices)
}

func renderClientDashboard(ctx context.Context, w io.Writer, data Data, v Viewer) error {
	stats, err := data.Dashboard(ctx, model.RoleClient, v.UserID)
	if err != nil {
		return err
	}
	if stats == nil || stats.Client == nil {
		_, err := fmt.Fprintln(w, noClientRecord)
		return err
	}
	c := stats.Client

	tw := newTable(w)
	fmt.Fprintf(tw, "Total Projects\t%d\n", c.TotalProjects)
	fmt.Fprintf(tw, "Active Projects\t%d\n", c.ActiveProjects)
	fmt.Fprintf(tw, "Completed\t%d\n", c.CompletedProjects)
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w, "\nRecent Projects")
	if err := writeProjects(w, c.RecentProjects, false); err != nil {
		return err
	}
	fmt.Fprintln(w, "\nRecent Invoices")
	return writeInvoices(w, v, c.RecentInvoices)
}

func renderClients(ctx context.Context, w io.Writer, data Data, v Viewer) error {
	clients, err := data.Clients(ctx)
	if err != nil {
		return err
	}
	if len(clients) == 0 {
		_, err := fmt.Fprintln(w, "No clients yet.")
		return err
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "NAME\tCOMPANY\tEMAIL\tPROJECTS\tSPENT\tSINCE")
	for _, c := range clients {
		name, company, email := "-", "-", "-"
		if c.User != nil {
			name, email = c.User.FullName, c.User.Email
			if c.User.CompanyName != nil {
				company = *c.User.CompanyName
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			name, company, email, c.TotalProjects,
			money(v, c.TotalSpent),
			format.FormatDate(c.CreatedAt, format.DateShort),
		)
	}
	return tw.Flush()
}

func renderProjects(ctx context.Context, w io.Writer, data Data, v Viewer) error {
	clientID, ok := scope(v)
	if !ok {
		_, err := fmt.Fprintln(w, noClientRecord)
		return err
	}
	projects, err := data.Projects(ctx, clientID)
	if err != nil {
		return err
	}
	return writeProjects(w, projects, v.Role == model.RoleAdmin)
}

func writeProjects(w io.Writer, projects []model.Project, withClient bool) error {
	if len(projects) == 0 {
		_, err := fmt.Fprintln(w, "No projects yet.")
		return err
	}

	now := time.Now()
	tw := newTable(w)
	if withClient {
		fmt.Fprintln(tw, "TITLE\tCLIENT\tSTATUS\tPRIORITY\tPROGRESS\tDUE")
	} else {
		fmt.Fprintln(tw, "TITLE\tSTATUS\tPRIORITY\tPROGRESS\tDUE")
	}
	for _, p := range projects {
		due := optDate(p.DueDate)
		if p.DueDate != nil && format.IsOverdue(p.DueDate.Time, now) && p.Status != model.ProjectCompleted && p.Status != model.ProjectDelivered {
			due += " (overdue)"
		}
		title := format.Truncate(p.Title, 40)
		status := format.FormatStatus(string(p.Status))
		priority := format.FormatStatus(string(p.Priority))
		progress := fmt.Sprintf("%d%%", format.ClampPercent(p.ProgressPercentage))
		if !withClient {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", title, status, priority, progress, due)
			continue
		}
		client := "-"
		if p.Client != nil && p.Client.User != nil {
			client = p.Client.User.FullName
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", title, client, status, priority, progress, due)
	}
	return tw.Flush()
}

func renderRequests(ctx context.Context, w io.Writer, data Data, v Viewer) error {
	clientID, ok := scope(v)
	if !ok {
		_, err := fmt.Fprintln(w, noClientRecord)
		return err
	}
	reqs, err := data.Requests(ctx, clientID)
	if err != nil {
		return err
	}
	if len(reqs) == 0 {
		_, err := fmt.Fprintln(w, "No requests yet.")
		return err
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "TITLE\tSTATUS\tPRIORITY\tBUDGET\tDEADLINE\tSUBMITTED")
	for _, r := range reqs {
		budget := "-"
		if b := r.Budget(); b != nil {
			budget = money(v, *b)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			format.Truncate(r.Title, 40),
			format.FormatStatus(string(r.Status)),
			format.FormatStatus(string(r.PriorityLevel)),
			budget,
			optDate(r.PreferredDeadline),
			format.FormatDateTime(r.SubmittedAt),
		)
	}
	return tw.Flush()
}

func renderInvoices(ctx context.Context, w io.Writer, data Data, v Viewer) error {
	clientID, ok := scope(v)
	if !ok {
		_, err := fmt.Fprintln(w, noClientRecord)
		return err
	}
	invoices, err := data.Invoices(ctx, clientID)
	if err != nil {
		return err
	}
	return writeInvoices(w, v, invoices)
}

func writeInvoices(w io.Writer, v Viewer, invoices []model.Invoice) error {
	if len(invoices) == 0 {
		_, err := fmt.Fprintln(w, "No invoices yet.")
		return err
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "NUMBER\tSTATUS\tTOTAL\tDUE\tITEMS")
	for _, inv := range invoices {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n",
			inv.InvoiceNumber,
			format.FormatStatus(string(inv.Status)),
			money(v, inv.TotalAmount),
			format.FormatDate(inv.DueDate.Time, format.DateShort),
			len(inv.Items),
		)
	}
	return tw.Flush()
}

func renderNotifications(ctx context.Context, w io.Writer, data Data, v Viewer) error {
	notes, err := data.Notifications(ctx, v.UserID)
	if err != nil {
		return err
	}
	if len(notes) == 0 {
		_, err := fmt.Fprintln(w, "No messages.")
		return err
	}

	tw := newTable(w)
	for _, n := range notes {
		mark := " "
		if !n.IsRead {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			mark,
			format.FormatDateTime(n.CreatedAt),
			n.Title,
			format.Truncate(n.Message, 60),
		)
	}
	return tw.Flush()
}

func renderProfile(_ context.Context, w io.Writer, _ Data, v Viewer) error {
	p := v.Profile
	if p == nil {
		_, err := fmt.Fprintln(w, "Setting up your profile...")
		return err
	}

	opt := func(s *string) string {
		if s == nil || *s == "" {
			return "-"
		}
		return *s
	}
	tw := newTable(w)
	fmt.Fprintf(tw, "Name\t%s (%s)\n", p.FullName, format.Initials(p.FullName))
	fmt.Fprintf(tw, "Email\t%s\n", p.Email)
	fmt.Fprintf(tw, "Company\t%s\n", opt(p.CompanyName))
	fmt.Fprintf(tw, "Phone\t%s\n", opt(p.Phone))
	fmt.Fprintf(tw, "WhatsApp\t%s\n", opt(p.WhatsappNumber))
	fmt.Fprintf(tw, "Address\t%s\n", opt(p.Address))
	return tw.Flush()
}
