// Package branding はブローカーごとの画面ブランディング設定を管理する。
// カラー・ウェルカム文・ロゴを扱い、ロゴは外部URLからの取り込みにも対応する。
package branding

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/model"
)

// SSRFValidator はSSRF検証のインターフェース。
// security.SSRFGuardServiceを抽象化してテスタビリティを向上させる。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// LogoFetcherService は外部URLからのロゴ取り込みのインターフェース。
type LogoFetcherService interface {
	// FetchLogo は指定URLからロゴ画像を取得する。
	// 画像URLを直接指定した場合はその画像を、HTMLページを指定した場合は
	// ページ内のアイコンリンクを探索して最適な画像を返す。
	FetchLogo(ctx context.Context, rawURL string) (data []byte, mimeType string, err error)
}

// LogoFetcher はロゴ取り込み機能の実装。
type LogoFetcher struct {
	ssrfGuard SSRFValidator
	maxSize   int64
	timeout   time.Duration
}

// NewLogoFetcher はLogoFetcherの新しいインスタンスを生成する。
func NewLogoFetcher(ssrfGuard SSRFValidator, maxSize int64, timeout time.Duration) *LogoFetcher {
	return &LogoFetcher{
		ssrfGuard: ssrfGuard,
		maxSize:   maxSize,
		timeout:   timeout,
	}
}

// FetchLogo は指定URLからロゴ画像を取得する。
// 1. SSRF検証を実行
// 2. URLにHTTPリクエストを送信
// 3. レスポンスが画像ならそのまま採用
// 4. HTMLの場合はheadタグのアイコンリンクを探索し、サイズの大きい候補から試行
// 5. 候補が尽きた場合は /favicon.ico を試行
func (f *LogoFetcher) FetchLogo(ctx context.Context, rawURL string) ([]byte, string, error) {
	if rawURL == "" {
		return nil, "", model.NewValidationError("URLが入力されていません")
	}
	if f.ssrfGuard != nil {
		if err := f.ssrfGuard.ValidateURL(rawURL); err != nil {
			slog.Warn("logo fetch blocked", slog.String("url", rawURL), slog.String("error", err.Error()))
			return nil, "", model.NewValidationError("このURLからは取得できません")
		}
	}

	body, mimeType, err := f.get(ctx, rawURL)
	if err != nil {
		return nil, "", err
	}

	// 画像URLの直接指定
	if isImageMime(mimeType) {
		return body, mimeType, nil
	}

	// HTMLページの場合はアイコンリンクを探索
	if strings.Contains(mimeType, "html") {
		for _, candidate := range rankIconCandidates(parseIconLinks(body, rawURL)) {
			data, candidateMime, err := f.fetchImage(ctx, candidate.URL)
			if err == nil {
				return data, candidateMime, nil
			}
		}

		// 候補が尽きたら /favicon.ico を試す
		if faviconURL := guessDefaultFaviconURL(rawURL); faviconURL != "" {
			if data, faviconMime, err := f.fetchImage(ctx, faviconURL); err == nil {
				return data, faviconMime, nil
			}
		}
	}

	return nil, "", model.NewValidationError("ロゴ画像を取得できませんでした。画像URLを直接指定してください")
}

// fetchImage は指定URLから画像を取得する。画像以外のレスポンスはエラー。
func (f *LogoFetcher) fetchImage(ctx context.Context, rawURL string) ([]byte, string, error) {
	if f.ssrfGuard != nil {
		if err := f.ssrfGuard.ValidateURL(rawURL); err != nil {
			return nil, "", model.NewValidationError("このURLからは取得できません")
		}
	}

	body, mimeType, err := f.get(ctx, rawURL)
	if err != nil {
		return nil, "", err
	}
	if !isImageMime(mimeType) {
		return nil, "", model.NewInvalidFileTypeError("画像")
	}
	return body, mimeType, nil
}

// get はURLを取得してボディとメディアタイプを返す。
func (f *LogoFetcher) get(ctx context.Context, rawURL string) ([]byte, string, error) {
	client := f.httpClient()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", model.NewValidationError("URLの形式が不正です")
	}
	req.Header.Set("User-Agent", "EnrollHub/1.0")

	resp, err := client.Do(req)
	if err != nil {
		slog.Warn("logo fetch failed", slog.String("url", rawURL), slog.String("error", err.Error()))
		return nil, "", model.NewValidationError("指定されたURLに接続できませんでした")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", model.NewValidationError("取得先がエラーを返しました")
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return nil, "", model.NewValidationError("レスポンスの読み取りに失敗しました")
	}
	if int64(len(body)) > f.maxSize {
		return nil, "", model.NewFileTooLargeError(f.maxSize)
	}

	return body, extractMediaType(resp.Header.Get("Content-Type")), nil
}

// httpClient はHTTPクライアントを取得する。
// SSRFGuardが設定されている場合はSSRF防止付きクライアントを返す。
func (f *LogoFetcher) httpClient() *http.Client {
	if f.ssrfGuard != nil {
		return f.ssrfGuard.NewSafeClient(f.timeout, f.maxSize)
	}
	return &http.Client{Timeout: f.timeout}
}

// iconCandidate はHTMLから検出されたアイコンリンクの候補を表す。
type iconCandidate struct {
	URL  string
	Rel  string
	Size int // sizes属性の幅。未指定は0
}

// parseIconLinks はHTMLのheadタグからアイコンリンクを検出する。
// 相対URLはbaseURLを基準に絶対URLに解決される。
func parseIconLinks(htmlBody []byte, baseURL string) []iconCandidate {
	var candidates []iconCandidate

	baseU, err := url.Parse(baseURL)
	if err != nil {
		return candidates
	}

	tokenizer := html.NewTokenizer(bytes.NewReader(htmlBody))
	inHead := false

	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return candidates

		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := tokenizer.TagName()
			tagName := string(tn)

			if tagName == "head" {
				inHead = true
				continue
			}
			if tagName == "body" {
				// bodyに入ったらheadの解析を終了
				return candidates
			}
			if !inHead || tagName != "link" || !hasAttr {
				continue
			}

			var rel, href, sizes string
			for {
				key, val, more := tokenizer.TagAttr()
				switch strings.ToLower(string(key)) {
				case "rel":
					rel = strings.ToLower(string(val))
				case "href":
					href = string(val)
				case "sizes":
					sizes = strings.ToLower(string(val))
				}
				if !more {
					break
				}
			}

			// rel属性に icon を含むリンクのみ対象（icon / shortcut icon / apple-touch-icon）
			if href == "" || !strings.Contains(rel, "icon") {
				continue
			}

			resolved := resolveURL(baseU, href)
			if resolved == "" {
				continue
			}

			candidates = append(candidates, iconCandidate{
				URL:  resolved,
				Rel:  rel,
				Size: parseIconSize(sizes),
			})

		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			if string(tn) == "head" {
				return candidates
			}
		}
	}
}

// rankIconCandidates はアイコン候補を取り込みの優先順に並べ替える。
// 優先順位: サイズの大きいもの > apple-touch-icon > 出現順
func rankIconCandidates(candidates []iconCandidate) []iconCandidate {
	type scored struct {
		candidate iconCandidate
		score     int
		index     int
	}

	list := make([]scored, len(candidates))
	for i, c := range candidates {
		score := c.Size
		if strings.Contains(c.Rel, "apple-touch-icon") {
			score += 50
		}
		list[i] = scored{candidate: c, score: score, index: i}
	}

	sort.SliceStable(list, func(i, j int) bool {
		if list[i].score != list[j].score {
			return list[i].score > list[j].score
		}
		return list[i].index < list[j].index
	})

	ranked := make([]iconCandidate, len(list))
	for i, s := range list {
		ranked[i] = s.candidate
	}
	return ranked
}

// parseIconSize はsizes属性（"180x180" 等）から幅を取り出す。
func parseIconSize(sizes string) int {
	if sizes == "" || sizes == "any" {
		return 0
	}
	// 複数指定（"32x32 16x16"）は先頭を使う
	first := strings.Fields(sizes)[0]
	width, _, found := strings.Cut(first, "x")
	if !found {
		return 0
	}
	n, err := strconv.Atoi(width)
	if err != nil {
		return 0
	}
	return n
}

// resolveURL は相対URLをベースURLを基準に絶対URLに解決する。
func resolveURL(base *url.URL, rawRef string) string {
	ref, err := url.Parse(rawRef)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

// guessDefaultFaviconURL はサイトURLからデフォルトのfavicon URLを推測する。
func guessDefaultFaviconURL(siteURL string) string {
	u, err := url.Parse(siteURL)
	if err != nil {
		return ""
	}
	u.Path = "/favicon.ico"
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

// extractMediaType はContent-Typeヘッダーからメディアタイプを抽出する。
func extractMediaType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.Split(contentType, ";")[0])
	}
	return strings.ToLower(mediaType)
}

// isImageMime はMIMEタイプが画像かどうかを判定する。
func isImageMime(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/")
}

// compile-time interface check
var _ LogoFetcherService = (*LogoFetcher)(nil)
