package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/model"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralRate     rate.Limit    // API全般のレート（req/sec）。120/60 = 2 req/sec
	GeneralBurst    int           // API全般のバーストサイズ
	UploadRate      rate.Limit    // ファイルアップロードのレート（req/sec）
	UploadBurst     int           // ファイルアップロードのバーストサイズ
	LoginRate       rate.Limit    // ログイン試行のレート（req/sec、IP単位）
	LoginBurst      int           // ログイン試行のバーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// API全般 120 req/min/user、アップロード 20 req/min/user、ログイン 10 req/min/IP。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(120.0 / 60.0), // 2 req/sec
		GeneralBurst:    120,
		UploadRate:      rate.Limit(20.0 / 60.0), // ~0.333 req/sec
		UploadBurst:     20,
		LoginRate:       rate.Limit(10.0 / 60.0), // ~0.167 req/sec
		LoginBurst:      10,
		CleanupInterval: 5 * time.Minute,
	}
}

// RateLimitedRecorder はレート制限による拒否をメトリクスへ記録するインターフェース。
// metrics.Collectorの部分集合として定義する。
type RateLimitedRecorder interface {
	RecordRateLimited(scope string)
}

// keyLimiter はキーごとのレートリミッターとアクセス時刻を保持する。
type keyLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// limiterBucket はキー（ユーザーIDまたはIP）ごとのリミッター集合を管理する。
type limiterBucket struct {
	rate  rate.Limit
	burst int

	mu       sync.RWMutex
	limiters map[string]*keyLimiter
}

func newLimiterBucket(r rate.Limit, burst int) *limiterBucket {
	return &limiterBucket{
		rate:     r,
		burst:    burst,
		limiters: make(map[string]*keyLimiter),
	}
}

// getOrCreate はキーのリミッターを取得または作成する。
func (b *limiterBucket) getOrCreate(key string) *rate.Limiter {
	b.mu.RLock()
	kl, exists := b.limiters[key]
	b.mu.RUnlock()

	if exists {
		b.mu.Lock()
		kl.lastAccess = time.Now()
		b.mu.Unlock()
		return kl.limiter
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// ダブルチェック
	if kl, exists := b.limiters[key]; exists {
		kl.lastAccess = time.Now()
		return kl.limiter
	}

	limiter := rate.NewLimiter(b.rate, b.burst)
	b.limiters[key] = &keyLimiter{
		limiter:    limiter,
		lastAccess: time.Now(),
	}

	return limiter
}

// count は現在管理されているエントリ数を返す。テストおよびメトリクス用。
func (b *limiterBucket) count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.limiters)
}

// cleanup は最終アクセス時刻がttlを超えたエントリを削除する。
func (b *limiterBucket) cleanup(now time.Time, ttl time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for key, kl := range b.limiters {
		if now.Sub(kl.lastAccess) > ttl {
			delete(b.limiters, key)
		}
	}
}

// RateLimiter はキーごとのレート制限を管理する。
// API全般（ユーザー単位）、アップロード（ユーザー単位）、
// ログイン試行（IP単位）の3種類を提供する。
type RateLimiter struct {
	config   RateLimiterConfig
	recorder RateLimitedRecorder

	general *limiterBucket
	upload  *limiterBucket
	login   *limiterBucket

	stopCh chan struct{}
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
// recorderはnilでもよい。
func NewRateLimiter(config RateLimiterConfig, recorder RateLimitedRecorder) *RateLimiter {
	rl := &RateLimiter{
		config:   config,
		recorder: recorder,
		general:  newLimiterBucket(config.GeneralRate, config.GeneralBurst),
		upload:   newLimiterBucket(config.UploadRate, config.UploadBurst),
		login:    newLimiterBucket(config.LoginRate, config.LoginBurst),
		stopCh:   make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
}

// GeneralMiddleware はAPI全般のレート制限ミドルウェアを返す。
// リクエストコンテキストに認証主体が含まれている必要がある（SessionMiddlewareの後に配置）。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return rl.principalMiddleware(rl.general, "general", rl.config.GeneralRate)
}

// UploadMiddleware はファイルアップロード専用のレート制限ミドルウェアを返す。
// API全般のレート制限とは独立に動作する。
func (rl *RateLimiter) UploadMiddleware() func(next http.Handler) http.Handler {
	return rl.principalMiddleware(rl.upload, "upload", rl.config.UploadRate)
}

// principalMiddleware は認証主体のユーザーIDをキーとするレート制限ミドルウェアを返す。
func (rl *RateLimiter) principalMiddleware(bucket *limiterBucket, scope string, r rate.Limit) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			principal, err := PrincipalFromContext(req.Context())
			if err != nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			if !bucket.getOrCreate(principal.UserID).Allow() {
				rl.reject(w, scope, r, slog.String("user_id", principal.UserID))
				return
			}

			next.ServeHTTP(w, req)
		})
	}
}

// LoginMiddleware はログイン試行専用のレート制限ミドルウェアを返す。
// 未認証の公開エンドポイントで使うため、keyFnが返すクライアントIPをキーとする。
func (rl *RateLimiter) LoginMiddleware(keyFn func(r *http.Request) string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			key := keyFn(req)

			if !rl.login.getOrCreate(key).Allow() {
				rl.reject(w, "login", rl.config.LoginRate, slog.String("client_ip", key))
				return
			}

			next.ServeHTTP(w, req)
		})
	}
}

// reject は429レスポンスを書き込み、警告ログとメトリクスを記録する。
func (rl *RateLimiter) reject(w http.ResponseWriter, scope string, r rate.Limit, keyAttr slog.Attr) {
	writeRateLimitResponse(w, r)
	slog.Warn("rate limit exceeded",
		keyAttr,
		slog.String("limit_type", scope),
	)
	if rl.recorder != nil {
		rl.recorder.RecordRateLimited(scope)
	}
}

// GeneralLimiterCount は現在管理されているAPI全般リミッターのエントリ数を返す。
func (rl *RateLimiter) GeneralLimiterCount() int { return rl.general.count() }

// UploadLimiterCount は現在管理されているアップロードリミッターのエントリ数を返す。
func (rl *RateLimiter) UploadLimiterCount() int { return rl.upload.count() }

// LoginLimiterCount は現在管理されているログインリミッターのエントリ数を返す。
func (rl *RateLimiter) LoginLimiterCount() int { return rl.login.count() }

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup() {
	ttl := rl.config.CleanupInterval * 2
	now := time.Now()

	rl.general.cleanup(now, ttl)
	rl.upload.cleanup(now, ttl)
	rl.login.cleanup(now, ttl)
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはトークンが補充されるまでの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	// Retry-Afterの算出: 1トークンが補充されるまでの秒数
	retryAfterSec := int(math.Ceil(1.0 / float64(r)))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	WriteErrorResponse(w, http.StatusTooManyRequests, model.NewRateLimitedError())
}
