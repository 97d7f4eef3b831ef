package portal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"property-analyzer/internal/shared/telemetry"
)

const defaultBaseURL = "https://boulder.co.publicsearch.us"

var (
	downloadButtonName = regexp.MustCompile(`(?i)download\s*\(free\)`)
	anyDownloadButton  = regexp.MustCompile(`(?i)download`)

	loginSelectors    = []string{`input[type="password"]`, `input[name="password"]`, `button:has-text("Sign In")`, `button:has-text("Login")`}
	usernameSelectors = []string{`input[type="email"]`, `input[name="username"]`, `input[name="email"]`}
	passwordSelectors = []string{`input[type="password"]`, `input[name="password"]`}
	submitSelectors   = []string{`button[type="submit"]`, `button:has-text("Sign In")`, `button:has-text("Login")`, `button:has-text("Submit")`}
)

// Options configure a PlaywrightDownloader.
type Options struct {
	BaseURL      string
	Username     string
	Password     string
	StorageState string
	Headless     bool
	Timeout      time.Duration
}

// PlaywrightDownloader drives Chromium through the portal search and saves each
// result's free download.
type PlaywrightDownloader struct {
	opts Options
	// guards the storage-state file shared by concurrent runs
	sessionMu sync.Mutex
	now       func() time.Time
}

// NewPlaywrightDownloader fills in defaults for unset options.
func NewPlaywrightDownloader(opts Options) *PlaywrightDownloader {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.StorageState == "" {
		opts.StorageState = "portal_storage_state.json"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &PlaywrightDownloader{opts: opts, now: time.Now}
}

// InstallBrowsers downloads the playwright driver and Chromium.
func InstallBrowsers() error {
	return playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}})
}

type session struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
}

func (s *session) close() {
	if s.browser != nil {
		_ = s.browser.Close()
	}
	if s.pw != nil {
		_ = s.pw.Stop()
	}
}

func (d *PlaywrightDownloader) Download(ctx context.Context, query string, limit int, dir string) ([]string, error) {
	if limit <= 0 {
		limit = 1
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &DownloadError{Stage: StageLaunch, Err: fmt.Errorf("create download dir: %w", err)}
	}

	s, err := d.open()
	if err != nil {
		return nil, &DownloadError{Stage: StageLaunch, Err: err}
	}
	defer s.close()

	resultsURL := ResultsURL(d.opts.BaseURL, query, d.now())
	telemetry.Info("portal.search", map[string]any{"query": query, "limit": limit})
	if err := d.gotoResults(s.page, resultsURL); err != nil {
		return nil, &DownloadError{Stage: StageSearch, Err: err}
	}

	rows, err := d.resultRows(s.page)
	if err != nil {
		return nil, &DownloadError{Stage: StageSearch, Err: err}
	}
	if len(rows) == 0 {
		return nil, &DownloadError{Stage: StageSearch, Err: errors.New("no search results")}
	}
	if len(rows) > limit {
		rows = rows[:limit]
	}

	var paths []string
	var lastErr error
	for i := range rows {
		if err := ctx.Err(); err != nil {
			return nil, &DownloadError{Stage: StageDownload, Err: err}
		}
		n := i + 1
		// rows go stale after navigating away, so look them up again each time
		if i > 0 {
			fresh, err := d.resultRows(s.page)
			if err != nil || len(fresh) <= i {
				lastErr = fmt.Errorf("result %d no longer listed", n)
				break
			}
			rows[i] = fresh[i]
		}
		path, err := d.downloadRow(s, rows[i], n, query, dir, resultsURL)
		if err != nil {
			lastErr = err
			telemetry.Warn("portal.download.failed", map[string]any{"index": n, "error": err})
			if gerr := d.gotoResults(s.page, resultsURL); gerr != nil {
				break
			}
			continue
		}
		telemetry.Info("portal.download.ok", map[string]any{"index": n, "file": filepath.Base(path)})
		paths = append(paths, path)
	}

	if err := d.saveSession(s.context); err != nil {
		telemetry.Warn("portal.session.save_failed", map[string]any{"error": err})
	}

	if len(paths) == 0 {
		if lastErr == nil {
			lastErr = errors.New("no documents downloaded")
		}
		var de *DownloadError
		if errors.As(lastErr, &de) {
			return nil, de
		}
		return nil, &DownloadError{Stage: StageDownload, Err: fmt.Errorf("no documents downloaded: %w", lastErr)}
	}
	return paths, nil
}

func (d *PlaywrightDownloader) open() (*session, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}
	s := &session{pw: pw}

	s.browser, err = pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(d.opts.Headless),
		Args:     []string{"--no-sandbox", "--disable-dev-shm-usage"},
	})
	if err != nil {
		s.close()
		return nil, fmt.Errorf("launch chromium: %w", err)
	}

	ctxOpts := playwright.BrowserNewContextOptions{
		Viewport:        &playwright.Size{Width: 1920, Height: 1080},
		UserAgent:       playwright.String("Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"),
		AcceptDownloads: playwright.Bool(true),
	}
	d.sessionMu.Lock()
	if _, err := os.Stat(d.opts.StorageState); err == nil {
		ctxOpts.StorageStatePath = playwright.String(d.opts.StorageState)
		telemetry.Info("portal.session.reuse", map[string]any{"path": d.opts.StorageState})
	}
	s.context, err = s.browser.NewContext(ctxOpts)
	d.sessionMu.Unlock()
	if err != nil {
		s.close()
		return nil, fmt.Errorf("new browser context: %w", err)
	}

	s.page, err = s.context.NewPage()
	if err != nil {
		s.close()
		return nil, fmt.Errorf("new page: %w", err)
	}
	return s, nil
}

func (d *PlaywrightDownloader) saveSession(bctx playwright.BrowserContext) error {
	d.sessionMu.Lock()
	defer d.sessionMu.Unlock()
	if dir := filepath.Dir(d.opts.StorageState); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	_, err := bctx.StorageState(d.opts.StorageState)
	return err
}

func (d *PlaywrightDownloader) timeoutMs() *float64 {
	return playwright.Float(float64(d.opts.Timeout.Milliseconds()))
}

func (d *PlaywrightDownloader) gotoResults(page playwright.Page, resultsURL string) error {
	if _, err := page.Goto(resultsURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
		Timeout:   d.timeoutMs(),
	}); err != nil {
		return fmt.Errorf("open results: %w", err)
	}
	page.WaitForTimeout(2000)
	return nil
}

func (d *PlaywrightDownloader) resultRows(page playwright.Page) ([]playwright.Locator, error) {
	rowsLoc := page.Locator("tr:has(td)")
	if err := rowsLoc.First().WaitFor(playwright.LocatorWaitForOptions{Timeout: playwright.Float(10000)}); err != nil {
		return nil, fmt.Errorf("wait for results: %w", err)
	}
	all, err := rowsLoc.All()
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	rows := make([]playwright.Locator, 0, len(all))
	for _, row := range all {
		text, err := row.TextContent()
		if err != nil || len(strings.TrimSpace(text)) <= 10 {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (d *PlaywrightDownloader) downloadRow(s *session, row playwright.Locator, n int, query, dir, resultsURL string) (string, error) {
	if err := row.Click(); err != nil {
		return "", &DownloadError{Stage: StageDownload, Err: fmt.Errorf("open result %d: %w", n, err)}
	}
	s.page.WaitForTimeout(3000)
	if !strings.Contains(s.page.URL(), "/doc/") {
		return "", &DownloadError{Stage: StageDownload, Err: fmt.Errorf("result %d did not open a document page", n)}
	}

	loggedIn, err := d.ensureAuthenticated(s.page)
	if err != nil {
		return "", &DownloadError{Stage: StageAuth, Err: err}
	}
	if loggedIn {
		if err := d.saveSession(s.context); err != nil {
			telemetry.Warn("portal.session.save_failed", map[string]any{"error": err})
		}
	}

	btn := s.page.GetByRole(*playwright.AriaRoleButton, playwright.PageGetByRoleOptions{Name: downloadButtonName})
	visible, err := btn.IsVisible()
	if err != nil || !visible {
		return "", &DownloadError{Stage: StageDownload, Err: fmt.Errorf("result %d has no free download", n)}
	}

	dl, err := s.page.ExpectDownload(func() error {
		return btn.Click()
	}, playwright.PageExpectDownloadOptions{Timeout: d.timeoutMs()})
	if err != nil {
		return "", &DownloadError{Stage: StageDownload, Err: fmt.Errorf("result %d download: %w", n, err)}
	}

	path := filepath.Join(dir, DocumentFileName(n, query, dl.SuggestedFilename()))
	if err := dl.SaveAs(path); err != nil {
		return "", &DownloadError{Stage: StageDownload, Err: fmt.Errorf("save result %d: %w", n, err)}
	}

	if err := d.gotoResults(s.page, resultsURL); err != nil {
		telemetry.Warn("portal.results.return_failed", map[string]any{"error": err})
	}
	return path, nil
}

// ensureAuthenticated waits until a download button is visible, filling any
// login form found on the page, its frames or popups. It reports whether a
// login was performed.
func (d *PlaywrightDownloader) ensureAuthenticated(page playwright.Page) (bool, error) {
	deadline := time.Now().Add(d.opts.Timeout)
	loggedIn := false
	for attempt := 1; time.Now().Before(deadline); attempt++ {
		if isAuthenticated(page) {
			return loggedIn, nil
		}
		if hasLoginForm(page) {
			if d.opts.Username == "" || d.opts.Password == "" {
				return false, errors.New("portal requires login but no credentials are configured")
			}
			telemetry.Info("portal.auth.attempt", map[string]any{"attempt": attempt})
			if d.handleLogin(page) {
				loggedIn = true
				page.WaitForTimeout(3000)
				if isAuthenticated(page) {
					return true, nil
				}
			}
		}
		page.WaitForTimeout(2000)
	}
	return false, fmt.Errorf("authentication did not complete within %s", d.opts.Timeout)
}

func isAuthenticated(page playwright.Page) bool {
	if ok, _ := page.GetByRole(*playwright.AriaRoleButton, playwright.PageGetByRoleOptions{Name: anyDownloadButton}).First().IsVisible(); ok {
		return true
	}
	main := page.MainFrame()
	for _, f := range page.Frames() {
		if f == main {
			continue
		}
		if ok, _ := f.GetByRole(*playwright.AriaRoleButton, playwright.FrameGetByRoleOptions{Name: anyDownloadButton}).First().IsVisible(); ok {
			return true
		}
	}
	return false
}

func hasLoginForm(page playwright.Page) bool {
	if anyPresent(func(sel string) playwright.Locator { return page.Locator(sel) }, loginSelectors) {
		return true
	}
	main := page.MainFrame()
	for _, f := range page.Frames() {
		if f == main {
			continue
		}
		if anyPresent(func(sel string) playwright.Locator { return f.Locator(sel) }, loginSelectors) {
			return true
		}
	}
	return false
}

func (d *PlaywrightDownloader) handleLogin(page playwright.Page) bool {
	if anyPresent(func(sel string) playwright.Locator { return page.Locator(sel) }, loginSelectors) {
		d.fillLoginForm(func(sel string) playwright.Locator { return page.Locator(sel) })
		return true
	}
	main := page.MainFrame()
	for _, f := range page.Frames() {
		if f == main {
			continue
		}
		if anyPresent(func(sel string) playwright.Locator { return f.Locator(sel) }, passwordSelectors[:1]) {
			d.fillLoginForm(func(sel string) playwright.Locator { return f.Locator(sel) })
			return true
		}
	}
	for _, popup := range page.Context().Pages() {
		if popup == page {
			continue
		}
		if anyPresent(func(sel string) playwright.Locator { return popup.Locator(sel) }, passwordSelectors[:1]) {
			d.fillLoginForm(func(sel string) playwright.Locator { return popup.Locator(sel) })
			return true
		}
	}
	return false
}

func (d *PlaywrightDownloader) fillLoginForm(locate func(string) playwright.Locator) {
	fillFirstVisible(locate, usernameSelectors, d.opts.Username)
	fillFirstVisible(locate, passwordSelectors, d.opts.Password)
	for _, sel := range submitSelectors {
		loc := locate(sel).First()
		if ok, _ := loc.IsVisible(); ok {
			if err := loc.Click(); err == nil {
				return
			}
		}
	}
}

func fillFirstVisible(locate func(string) playwright.Locator, selectors []string, value string) {
	for _, sel := range selectors {
		loc := locate(sel).First()
		if ok, _ := loc.IsVisible(); ok {
			if err := loc.Fill(value); err == nil {
				return
			}
		}
	}
}

func anyPresent(locate func(string) playwright.Locator, selectors []string) bool {
	for _, sel := range selectors {
		if n, err := locate(sel).Count(); err == nil && n > 0 {
			return true
		}
	}
	return false
}

var _ Downloader = (*PlaywrightDownloader)(nil)
