// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SP User Service Contributors

//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/sp-platform/user-service/internal/api"
	"github.com/sp-platform/user-service/internal/auth"
	authpg "github.com/sp-platform/user-service/internal/auth/postgres"
	"github.com/sp-platform/user-service/internal/store"
)

// testEnv holds the resources shared by the suite.
type testEnv struct {
	ctx       context.Context
	cancel    context.CancelFunc
	container testcontainers.Container
	pool      *pgxpool.Pool
	server    *httptest.Server
}

var env *testEnv

// cheapParams keeps hashing fast enough for many signups per test case.
var cheapParams = auth.Argon2Params{MemoryKiB: 64, Iterations: 1, Parallelism: 1}

func setupTestEnv() (*testEnv, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	e := &testEnv{ctx: ctx, cancel: cancel}

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("usersvc_test"),
		postgres.WithUsername("usersvc"),
		postgres.WithPassword("usersvc"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		cancel()
		return nil, err
	}
	e.container = container

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		e.cleanup()
		return nil, err
	}

	migrator, err := store.NewMigrator(connStr)
	if err != nil {
		e.cleanup()
		return nil, err
	}
	if err := migrator.Up(); err != nil {
		_ = migrator.Close()
		e.cleanup()
		return nil, err
	}
	_ = migrator.Close()

	logger := slog.New(slog.NewTextHandler(GinkgoWriter, &slog.HandlerOptions{Level: slog.LevelWarn}))

	e.pool, err = store.OpenPostgres(ctx, connStr, store.DefaultConnectRetry, logger)
	if err != nil {
		e.cleanup()
		return nil, err
	}

	sessions, err := auth.NewSessionManager(authpg.NewSessionRepository(e.pool), auth.WithSessionLogger(logger))
	if err != nil {
		e.cleanup()
		return nil, err
	}
	hasher := auth.NewArgon2idHasherWithParams(cheapParams)
	dummy, err := auth.NewDummyHash(hasher)
	if err != nil {
		e.cleanup()
		return nil, err
	}
	svc, err := auth.NewAuthService(authpg.NewAccountRepository(e.pool), sessions, hasher,
		auth.WithLogger(logger),
		auth.WithDummyHash(dummy),
	)
	if err != nil {
		e.cleanup()
		return nil, err
	}
	handler, err := api.NewHandler(svc, api.WithLogger(logger))
	if err != nil {
		e.cleanup()
		return nil, err
	}
	e.server = httptest.NewServer(handler.Routes())
	return e, nil
}

func (e *testEnv) cleanup() {
	if e.server != nil {
		e.server.Close()
	}
	if e.pool != nil {
		e.pool.Close()
	}
	if e.container != nil {
		_ = e.container.Terminate(context.Background())
	}
	e.cancel()
}

func (e *testEnv) resetTables() {
	_, err := e.pool.Exec(e.ctx, "TRUNCATE sessions, accounts")
	Expect(err).NotTo(HaveOccurred())
}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Body    json.RawMessage `json:"body"`
}

func send(method, path, token string, body any) (envelope, int) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, env.server.URL+path, reader)
	Expect(err).NotTo(HaveOccurred())
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := env.server.Client().Do(req)
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()

	var out envelope
	Expect(json.NewDecoder(resp.Body).Decode(&out)).To(Succeed())
	return out, resp.StatusCode
}

func signUp(email, password string) int {
	_, status := send(http.MethodPost, "/user/signup", "", map[string]string{
		"email":     email,
		"firstName": "Grace",
		"lastName":  "Hopper",
		"dob":       "1906-12-09",
		"password":  password,
	})
	return status
}

func logIn(email, password string) (api.LoginResponse, envelope, int) {
	out, status := send(http.MethodPost, "/user/login", "", map[string]string{
		"email":    email,
		"password": password,
	})
	var body api.LoginResponse
	if status == http.StatusOK {
		Expect(json.Unmarshal(out.Body, &body)).To(Succeed())
	}
	return body, out, status
}

var _ = BeforeSuite(func() {
	var err error
	env, err = setupTestEnv()
	Expect(err).NotTo(HaveOccurred())
})

var _ = AfterSuite(func() {
	if env != nil {
		env.cleanup()
	}
})

var _ = Describe("Account and session lifecycle", func() {
	BeforeEach(func() {
		env.resetTables()
	})

	It("signs up, logs in, reads the session and logs out", func() {
		Expect(signUp("grace@example.com", "cobol-forever")).To(Equal(http.StatusCreated))

		login, out, status := logIn("Grace@Example.com", "cobol-forever")
		Expect(status).To(Equal(http.StatusOK))
		Expect(out.Message).To(Equal(api.MsgLoggedIn))
		Expect(login.Token).To(HaveLen(2 * auth.SessionTokenBytes))

		session, status := send(http.MethodGet, "/user/session", login.Token, nil)
		Expect(status).To(Equal(http.StatusOK))
		var info api.SessionResponse
		Expect(json.Unmarshal(session.Body, &info)).To(Succeed())
		Expect(info.Email).To(Equal("grace@example.com"))
		Expect(info.AccountID).To(Equal(login.AccountID))

		_, status = send(http.MethodPost, "/user/logout", login.Token, nil)
		Expect(status).To(Equal(http.StatusOK))

		_, status = send(http.MethodGet, "/user/session", login.Token, nil)
		Expect(status).To(Equal(http.StatusUnauthorized))

		again, status := send(http.MethodPost, "/user/logout", login.Token, nil)
		Expect(status).To(Equal(http.StatusNotFound))
		Expect(again.Message).To(Equal("Session not found"))
	})

	It("rejects a duplicate email regardless of case", func() {
		Expect(signUp("dup@example.com", "password-one")).To(Equal(http.StatusCreated))
		Expect(signUp("DUP@example.com", "password-two")).To(Equal(http.StatusConflict))
	})

	It("answers an unknown email and a wrong password identically", func() {
		Expect(signUp("known@example.com", "right-password")).To(Equal(http.StatusCreated))

		_, wrong, wrongStatus := logIn("known@example.com", "wrong-password")
		_, unknown, unknownStatus := logIn("nobody@example.com", "wrong-password")

		Expect(wrongStatus).To(Equal(http.StatusUnauthorized))
		Expect(unknownStatus).To(Equal(wrongStatus))
		Expect(unknown.Message).To(Equal(wrong.Message))
	})

	It("keeps sessions independent per login", func() {
		Expect(signUp("multi@example.com", "many-sessions")).To(Equal(http.StatusCreated))

		first, _, _ := logIn("multi@example.com", "many-sessions")
		second, _, _ := logIn("multi@example.com", "many-sessions")
		Expect(first.Token).NotTo(Equal(second.Token))

		_, status := send(http.MethodPost, "/user/logout", first.Token, nil)
		Expect(status).To(Equal(http.StatusOK))

		_, status = send(http.MethodGet, "/user/session", second.Token, nil)
		Expect(status).To(Equal(http.StatusOK))
	})

	It("creates exactly one account under concurrent signups for one email", func() {
		const workers = 12
		var created atomic.Int32
		var conflicts atomic.Int32
		var wg sync.WaitGroup

		for range workers {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				switch signUp("race@example.com", "concurrent-pass") {
				case http.StatusCreated:
					created.Add(1)
				case http.StatusConflict:
					conflicts.Add(1)
				}
			}()
		}
		wg.Wait()

		Expect(created.Load()).To(Equal(int32(1)))
		Expect(conflicts.Load()).To(Equal(int32(workers - 1)))
	})

	It("revokes a session exactly once under concurrent logouts", func() {
		Expect(signUp("logout@example.com", "logout-race")).To(Equal(http.StatusCreated))
		login, _, _ := logIn("logout@example.com", "logout-race")

		const workers = 8
		var ok atomic.Int32
		var wg sync.WaitGroup
		for range workers {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				if _, status := send(http.MethodPost, "/user/logout", login.Token, nil); status == http.StatusOK {
					ok.Add(1)
				}
			}()
		}
		wg.Wait()

		Expect(ok.Load()).To(Equal(int32(1)))
	})

	It("rejects invalid signup input with every failing field", func() {
		out, status := send(http.MethodPost, "/user/signup", "", map[string]string{
			"email":    "not-an-email",
			"password": "short",
		})
		Expect(status).To(Equal(http.StatusBadRequest))
		Expect(out.Message).To(ContainSubstring("email:"))
		Expect(out.Message).To(ContainSubstring("firstName:"))
		Expect(out.Message).To(ContainSubstring("password:"))

		var count int
		Expect(env.pool.QueryRow(env.ctx, "SELECT count(*) FROM accounts").Scan(&count)).To(Succeed())
		Expect(count).To(BeZero())
	})
})
