// Package digest composes the ticket digests sent to chats: the grouped
// summary, the itemized per-status lists and the short bot health line.
// Rendering is a pure function of the fetched rows.
package digest

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/a-atpv/report-bot-amu/internal/storage/mysql"
)

// Source is the slice of the ticket store the composer needs.
type Source interface {
	TicketsByStatus(ctx context.Context, status mysql.Status, departmentID int64, limit, offset int) ([]mysql.Ticket, error)
	TicketByID(ctx context.Context, id int64) (mysql.Ticket, error)
	UsersByIDs(ctx context.Context, ids []int64) (map[int64]mysql.User, error)
	BuildingLabels(ctx context.Context) (map[int64]string, error)
	CategoriesByDepartment(ctx context.Context, departmentID int64) ([]mysql.Category, error)
	SubcategoriesByCategory(ctx context.Context, categoryID int64) ([]mysql.SubCategory, error)
}

type Composer struct {
	src          Source
	departmentID int64
	limit        int
}

func New(src Source, departmentID int64, limit int) *Composer {
	return &Composer{src: src, departmentID: departmentID, limit: limit}
}

// A fallbackRule tries one status; when requireRows is set, an empty
// result moves on to the next rule instead of being returned.
type fallbackRule struct {
	status      mysql.Status
	requireRows bool
}

// newBucketRules is the ordered status chain for the "new" bucket of the
// summary. Installations differ on whether unassigned tickets sit in
// "available" or "new", so the first status that yields rows wins.
var newBucketRules = []fallbackRule{
	{status: mysql.StatusAvailable, requireRows: true},
	{status: mysql.StatusNew},
}

func (c *Composer) fetchByRules(ctx context.Context, rules []fallbackRule) ([]mysql.Ticket, error) {
	var rows []mysql.Ticket
	for _, r := range rules {
		var err error
		rows, err = c.src.TicketsByStatus(ctx, r.status, c.departmentID, c.limit, 0)
		if err != nil {
			return nil, err
		}
		if len(rows) > 0 || !r.requireRows {
			return rows, nil
		}
	}
	return rows, nil
}

// Summary renders the Markdown counts digest: total new tickets, a
// per-building breakdown and the in-progress load per specialist.
func (c *Composer) Summary(ctx context.Context) (string, error) {
	newRows, err := c.fetchByRules(ctx, newBucketRules)
	if err != nil {
		return "", fmt.Errorf("fetch new tickets: %w", err)
	}
	takenRows, err := c.src.TicketsByStatus(ctx, mysql.StatusTaken, c.departmentID, c.limit, 0)
	if err != nil {
		return "", fmt.Errorf("fetch taken tickets: %w", err)
	}

	groups := groupBySpecialist(takenRows)

	var labels map[int64]string
	if len(newRows) > 0 || len(groups) > 0 {
		if labels, err = c.src.BuildingLabels(ctx); err != nil {
			return "", fmt.Errorf("fetch building labels: %w", err)
		}
	}

	lines := []string{
		"📬 *Статистика заявок*",
		fmt.Sprintf("📊 *Всего новых:* %d", len(newRows)),
	}

	if len(newRows) > 0 {
		counts, other := groupByBuilding(newRows)
		lines = append(lines, "🏠 *По адресам:*", "")
		for _, bl := range sortedBuildingLines(counts, labels) {
			lines = append(lines, fmt.Sprintf("🏢 %s — *%d*", bl.label, bl.count))
		}
		if other > 0 {
			lines = append(lines, fmt.Sprintf("🏗 Другое — *%d*", other))
		}
	}

	if len(takenRows) > 0 {
		lines = append(lines, "", "", "⚙️ *В работе:*", "")
		if len(groups) > 0 {
			users, err := c.src.UsersByIDs(ctx, specialistIDs(groups))
			if err != nil {
				return "", fmt.Errorf("fetch specialists: %w", err)
			}
			for _, g := range groups {
				building := "не указан"
				if g.hasBuilding {
					building = labelFor(labels, g.buildingID)
				}
				lines = append(lines, fmt.Sprintf("👷‍♂️ %s — (%s) — *%d*", personLabel(users, g.specialistID), building, g.count))
			}
		}
	}

	return strings.Join(lines, "\n"), nil
}

// NewTickets renders the itemized HTML list of unassigned tickets.
func (c *Composer) NewTickets(ctx context.Context) (string, error) {
	rows, err := c.src.TicketsByStatus(ctx, mysql.StatusNew, c.departmentID, c.limit, 0)
	if err != nil {
		return "", fmt.Errorf("fetch new tickets: %w", err)
	}
	return c.itemize(ctx, rows, "всего новых заявок", false)
}

// TakenTickets renders the itemized HTML list of in-progress tickets,
// including the assigned specialist.
func (c *Composer) TakenTickets(ctx context.Context) (string, error) {
	rows, err := c.src.TicketsByStatus(ctx, mysql.StatusTaken, c.departmentID, c.limit, 0)
	if err != nil {
		return "", fmt.Errorf("fetch taken tickets: %w", err)
	}
	return c.itemize(ctx, rows, "всего заявок в работе", true)
}

// Ticket renders a single ticket block, looked up by id. The caller sees
// mysql.ErrNotFound unchanged when the id does not exist.
func (c *Composer) Ticket(ctx context.Context, id int64) (string, error) {
	t, err := c.src.TicketByID(ctx, id)
	if err != nil {
		return "", err
	}
	maps, err := c.lookups(ctx, []mysql.Ticket{t}, true)
	if err != nil {
		return "", err
	}
	return "<blockquote>" + strings.Join(ticketBlockLines(t, maps, true), "\n") + "</blockquote>", nil
}

// StatusText is the short health line reused by /start and /status.
func StatusText(pingErr error) string {
	if pingErr != nil {
		return "Статус бота:\n⚠️ Не удалось подключиться к сервису заявок"
	}
	return "Статус бота:\n✅ Все работает штатно"
}

func (c *Composer) itemize(ctx context.Context, rows []mysql.Ticket, header string, withSpecialist bool) (string, error) {
	if len(rows) == 0 {
		return header + ": 0", nil
	}
	maps, err := c.lookups(ctx, rows, withSpecialist)
	if err != nil {
		return "", err
	}
	blocks := make([]string, 0, len(rows)+1)
	blocks = append(blocks, fmt.Sprintf("%s: %d", header, len(rows)))
	for _, t := range rows {
		blocks = append(blocks, "<blockquote>"+strings.Join(ticketBlockLines(t, maps, withSpecialist), "\n")+"</blockquote>")
	}
	return strings.Join(blocks, "\n\n"), nil
}

// lookupMaps carries the id→name resolutions one itemized digest needs.
type lookupMaps struct {
	users         map[int64]mysql.User
	buildings     map[int64]string
	categories    map[int64]string
	subcategories map[int64]string
}

func (c *Composer) lookups(ctx context.Context, rows []mysql.Ticket, withSpecialist bool) (lookupMaps, error) {
	idSet := map[int64]struct{}{}
	for _, t := range rows {
		if t.UserID.Valid {
			idSet[t.UserID.Int64] = struct{}{}
		}
		if withSpecialist && t.SpecialistID.Valid {
			idSet[t.SpecialistID.Int64] = struct{}{}
		}
	}
	ids := make([]int64, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}

	users, err := c.src.UsersByIDs(ctx, ids)
	if err != nil {
		return lookupMaps{}, fmt.Errorf("fetch users: %w", err)
	}
	buildings, err := c.src.BuildingLabels(ctx)
	if err != nil {
		return lookupMaps{}, fmt.Errorf("fetch building labels: %w", err)
	}

	cats, err := c.src.CategoriesByDepartment(ctx, c.departmentID)
	if err != nil {
		return lookupMaps{}, fmt.Errorf("fetch categories: %w", err)
	}
	categories := make(map[int64]string, len(cats))
	subcategories := map[int64]string{}
	for _, cat := range cats {
		categories[cat.ID] = cat.Display()
		subs, err := c.src.SubcategoriesByCategory(ctx, cat.ID)
		if err != nil {
			return lookupMaps{}, fmt.Errorf("fetch subcategories of %d: %w", cat.ID, err)
		}
		for _, sub := range subs {
			subcategories[sub.ID] = sub.Display()
		}
	}

	return lookupMaps{
		users:         users,
		buildings:     buildings,
		categories:    categories,
		subcategories: subcategories,
	}, nil
}

// ticketBlockLines renders the fixed fields of one ticket. The title
// column holds the requester's contact phone and may be empty.
func ticketBlockLines(t mysql.Ticket, m lookupMaps, withSpecialist bool) []string {
	category := "не указана"
	if t.CategoryID.Valid {
		category = nameFor(m.categories, t.CategoryID.Int64)
	}
	subcategory := "не указана"
	if t.SubcategoryID.Valid {
		subcategory = nameFor(m.subcategories, t.SubcategoryID.Int64)
	}
	building := "не указан"
	if t.BuildingID.Valid {
		building = labelFor(m.buildings, t.BuildingID.Int64)
	}
	description := t.Description.String
	if description == "" {
		description = "не указано"
	}
	cabinet := t.Cabinet.String
	if cabinet == "" {
		cabinet = "не указан"
	}

	lines := []string{
		"Заявка №" + strconv.FormatInt(t.ID, 10),
		"Заявитель: " + escapeHTML(personName(m.users, t.UserID)),
		"Категория: " + escapeHTML(category),
		"Подкатегория: " + escapeHTML(subcategory),
		"Контакты: " + escapeHTML(t.Title.String),
		"Описание: " + escapeHTML(description),
		"корпус: " + escapeHTML(building),
		"Кабинет: " + escapeHTML(cabinet),
	}
	if withSpecialist {
		lines = append(lines, "Исполнитель: "+escapeHTML(personName(m.users, t.SpecialistID)))
	}
	return lines
}

// groupByBuilding counts tickets per building id; rows without a building
// go into the second return value.
func groupByBuilding(tickets []mysql.Ticket) (map[int64]int, int) {
	counts := map[int64]int{}
	other := 0
	for _, t := range tickets {
		if !t.BuildingID.Valid {
			other++
			continue
		}
		counts[t.BuildingID.Int64]++
	}
	return counts, other
}

type buildingLine struct {
	id    int64
	label string
	count int
}

func sortedBuildingLines(counts map[int64]int, labels map[int64]string) []buildingLine {
	out := make([]buildingLine, 0, len(counts))
	for id, n := range counts {
		out = append(out, buildingLine{id: id, label: labelFor(labels, id), count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].label != out[j].label {
			return out[i].label < out[j].label
		}
		return out[i].id < out[j].id
	})
	return out
}

type specialistGroup struct {
	specialistID int64
	buildingID   int64
	hasBuilding  bool
	count        int
}

// groupBySpecialist counts taken tickets per (specialist, building) pair,
// skipping rows with no specialist. Output order: specialist id, then
// building id, with the unspecified building last.
func groupBySpecialist(tickets []mysql.Ticket) []specialistGroup {
	type key struct {
		specialistID int64
		buildingID   int64
		hasBuilding  bool
	}
	counts := map[key]int{}
	for _, t := range tickets {
		if !t.SpecialistID.Valid {
			continue
		}
		k := key{specialistID: t.SpecialistID.Int64}
		if t.BuildingID.Valid {
			k.buildingID = t.BuildingID.Int64
			k.hasBuilding = true
		}
		counts[k]++
	}
	out := make([]specialistGroup, 0, len(counts))
	for k, n := range counts {
		out = append(out, specialistGroup{
			specialistID: k.specialistID,
			buildingID:   k.buildingID,
			hasBuilding:  k.hasBuilding,
			count:        n,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.specialistID != b.specialistID {
			return a.specialistID < b.specialistID
		}
		if a.hasBuilding != b.hasBuilding {
			return a.hasBuilding
		}
		return a.buildingID < b.buildingID
	})
	return out
}

func specialistIDs(groups []specialistGroup) []int64 {
	seen := map[int64]struct{}{}
	ids := make([]int64, 0, len(groups))
	for _, g := range groups {
		if _, ok := seen[g.specialistID]; ok {
			continue
		}
		seen[g.specialistID] = struct{}{}
		ids = append(ids, g.specialistID)
	}
	return ids
}

// labelFor resolves a building id to its display label, falling back to
// the raw id.
func labelFor(labels map[int64]string, id int64) string {
	if l, ok := labels[id]; ok {
		return l
	}
	return strconv.FormatInt(id, 10)
}

// nameFor resolves a category or subcategory id, falling back to "ID <n>".
func nameFor(names map[int64]string, id int64) string {
	if n, ok := names[id]; ok {
		return n
	}
	return "ID " + strconv.FormatInt(id, 10)
}

func personLabel(users map[int64]mysql.User, id int64) string {
	if u, ok := users[id]; ok {
		return u.FullName()
	}
	return "ID " + strconv.FormatInt(id, 10)
}

func personName(users map[int64]mysql.User, id sql.NullInt64) string {
	if !id.Valid {
		return "не указан"
	}
	return personLabel(users, id.Int64)
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// escapeHTML escapes the three characters Telegram HTML cares about.
func escapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}
