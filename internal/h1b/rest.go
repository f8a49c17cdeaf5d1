package h1b

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/offersplus/backend/internal/httpx"
)

// distinctPageSize and maxDistinctScan bound the rows read to collect
// distinct values, since PostgREST has no DISTINCT.
const (
	distinctPageSize = 1000
	maxDistinctScan  = 10000
)

// RestSource reads the H1B table through a PostgREST endpoint such as the
// Supabase REST API.
type RestSource struct {
	client   *httpx.Client
	endpoint string
	apiKey   string
}

// NewRestSource targets baseURL (the PostgREST root, e.g.
// https://project.supabase.co/rest/v1) and table. apiKey is sent both as
// the apikey header and as a bearer token.
func NewRestSource(client *httpx.Client, baseURL, apiKey, table string) (*RestSource, error) {
	if table == "" {
		table = Table
	}
	if !identPattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid rest url %q", baseURL)
	}
	u = u.JoinPath(table)
	if client == nil {
		client = httpx.New(nil, httpx.Options{MaxAttempts: 1})
	}
	return &RestSource{client: client, endpoint: u.String(), apiKey: apiKey}, nil
}

// restFilters renders f as PostgREST query parameters.
func restFilters(f Filters) url.Values {
	f = f.Normalize()
	q := url.Values{}
	if f.Employer != "" {
		q.Add("employer_name", "ilike."+restLike(f.Employer))
	}
	if f.Status != "" {
		q.Add("case_status", "eq."+f.Status)
	}
	if f.JobTitle != "" {
		q.Add("job_title", "ilike."+restLike(f.JobTitle))
	}
	if f.MinSalary != nil {
		q.Add("wage_rate_of_pay_from", "gte."+formatFloat(*f.MinSalary))
	}
	if f.MaxSalary != nil {
		q.Add("wage_rate_of_pay_from", "lte."+formatFloat(*f.MaxSalary))
	}
	if f.SearchTerm != "" {
		p := quoteRest(restLike(f.SearchTerm))
		q.Set("or", fmt.Sprintf("(employer_name.ilike.%[1]s,job_title.ilike.%[1]s,case_number.ilike.%[1]s)", p))
	}
	return q
}

var restLikeEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `%`, `\%`, `_`, `\_`)

func restLike(s string) string { return "*" + restLikeEscaper.Replace(s) + "*" }

// quoteRest double-quotes a value inside a logic tree so reserved
// characters such as commas and parentheses stay literal.
func quoteRest(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
}

func restOrder(col string, asc bool) string {
	dir := ".desc"
	if asc {
		dir = ".asc"
	}
	if col == "id" {
		return "id" + dir
	}
	return col + dir + ",id" + dir
}

// ParseContentRange reads "0-19/1234", "*/0" or "0-19/*". total is -1 when
// the server did not count.
func ParseContentRange(v string) (total int, err error) {
	_, after, ok := strings.Cut(v, "/")
	if !ok {
		return 0, fmt.Errorf("malformed content-range %q", v)
	}
	if after == "*" {
		return -1, nil
	}
	total, err = strconv.Atoi(after)
	if err != nil || total < 0 {
		return 0, fmt.Errorf("malformed content-range %q", v)
	}
	return total, nil
}

func (s *RestSource) get(ctx context.Context, q url.Values, header http.Header) (*http.Response, error) {
	u := s.endpoint + "?" + q.Encode()
	resp, err := s.client.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		for k, v := range header {
			req.Header[k] = v
		}
		req.Header.Set("Accept", "application/json")
		if s.apiKey != "" {
			req.Header.Set("apikey", s.apiKey)
			req.Header.Set("Authorization", "Bearer "+s.apiKey)
		}
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusRequestedRangeNotSatisfiable {
		defer resp.Body.Close()
		return nil, decodeRestError(resp)
	}
	return resp, nil
}

func decodeRestError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	e := &RestError{Status: resp.StatusCode}
	if err := json.Unmarshal(body, e); err != nil || e.Message == "" {
		e.Message = strings.TrimSpace(string(body))
		if e.Message == "" {
			e.Message = http.StatusText(resp.StatusCode)
		}
	}
	return e
}

func (s *RestSource) fetch(ctx context.Context, q url.Values, header http.Header) ([]Record, *http.Response, error) {
	resp, err := s.get(ctx, q, header)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusRequestedRangeNotSatisfiable {
		return []Record{}, resp, nil
	}
	out := []Record{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, nil, fmt.Errorf("decode rest response: %w", err)
	}
	return out, resp, nil
}

func (s *RestSource) QueryPage(ctx context.Context, f Filters, p Pagination) (PaginatedResult[Record], error) {
	p = p.Clamp()
	q := restFilters(f)
	q.Set("select", "*")
	q.Set("order", restOrder(p.SortBy, p.Ascending()))
	header := http.Header{}
	header.Set("Range-Unit", "items")
	header.Set("Range", fmt.Sprintf("%d-%d", p.Offset(), p.Offset()+p.PageSize-1))
	header.Set("Prefer", "count=exact")

	rows, resp, err := s.fetch(ctx, q, header)
	if err != nil {
		return PaginatedResult[Record]{}, fmt.Errorf("query h1b applications: %w", err)
	}
	total, err := ParseContentRange(resp.Header.Get("Content-Range"))
	if err != nil {
		return PaginatedResult[Record]{}, fmt.Errorf("query h1b applications: %w", err)
	}
	if total < 0 {
		total = p.Offset() + len(rows)
	}
	return NewPaginatedResult(rows, total, p), nil
}

func (s *RestSource) Distinct(ctx context.Context, field Field, limit int) ([]string, error) {
	if _, err := ParseField(string(field)); err != nil {
		return nil, err
	}
	col := string(field)
	seen := make(map[string]struct{})
	for offset := 0; offset < maxDistinctScan; offset += distinctPageSize {
		q := url.Values{}
		q.Set("select", col)
		q.Add(col, "not.is.null")
		q.Add(col, "neq.")
		q.Set("order", col+".asc")
		q.Set("limit", strconv.Itoa(distinctPageSize))
		q.Set("offset", strconv.Itoa(offset))

		resp, err := s.get(ctx, q, nil)
		if err != nil {
			return nil, fmt.Errorf("distinct %s: %w", field, err)
		}
		var rows []map[string]any
		err = json.NewDecoder(resp.Body).Decode(&rows)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("decode distinct %s: %w", field, err)
		}
		for _, row := range rows {
			if v, ok := row[col].(string); ok && v != "" {
				seen[v] = struct{}{}
			}
		}
		if len(rows) < distinctPageSize || (limit > 0 && len(seen) >= limit) {
			break
		}
	}
	return limitValues(seen, limit), nil
}

func (s *RestSource) Sample(ctx context.Context, f Filters, limit int) ([]Record, error) {
	q := restFilters(f)
	q.Set("select", "*")
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	rows, _, err := s.fetch(ctx, q, nil)
	if err != nil {
		return nil, fmt.Errorf("sample h1b applications: %w", err)
	}
	return rows, nil
}

func (s *RestSource) Export(ctx context.Context, f Filters, limit int) ([]Record, error) {
	q := restFilters(f)
	q.Set("select", "*")
	q.Set("order", "id.desc")
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	rows, _, err := s.fetch(ctx, q, nil)
	if err != nil {
		return nil, fmt.Errorf("export h1b applications: %w", err)
	}
	return rows, nil
}
