package backend

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutorcal/internal/model"
)

func TestFetchScheduleBareArrayWithRange(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		_, _ = io.WriteString(w, `[{"Date":"2025-09-15","Time":"13:00 - 14:00","StudentCode":"S1","Teacher":"ครูโทน"}]`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"?key=abc", srv.Client())
	rows, err := c.FetchSchedule(context.Background(), model.DateRange{From: "2025-09-12", To: "2025-10-19"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "S1", rows[0].String("StudentCode"))
	assert.Equal(t, "schedule", gotQuery.Get("sheet"))
	assert.Equal(t, "2025-09-12", gotQuery.Get("from"))
	assert.Equal(t, "2025-10-19", gotQuery.Get("to"))
	assert.Equal(t, "abc", gotQuery.Get("key"))
}

func TestFetchScheduleEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"ok":true,"result":[{"Date":"2025-09-15","Time":"13:00"},{"Date":"2025-09-16","Time":"14:00"}]}`)
	}))
	defer srv.Close()

	rows, err := NewClient(srv.URL, nil).FetchSchedule(context.Background(), model.DateRange{})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestFetchScheduleFailures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{"http status", http.StatusBadGateway, "upstream down", func(t *testing.T, err error) {
			var he *HTTPError
			require.ErrorAs(t, err, &he)
			assert.Equal(t, http.StatusBadGateway, he.Status)
		}},
		{"envelope failure", http.StatusOK, `{"ok":false,"error":"sheet missing"}`, func(t *testing.T, err error) {
			var se *ServerError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, "sheet missing", se.Reason)
		}},
		{"html", http.StatusOK, "<html>login</html>", func(t *testing.T, err error) {
			assert.ErrorIs(t, err, ErrUnexpectedBody)
		}},
		{"script error object", http.StatusOK, `{"error":"Exceeded maximum execution time"}`, func(t *testing.T, err error) {
			assert.ErrorIs(t, err, ErrUnexpectedBody)
			assert.Contains(t, err.Error(), "Exceeded maximum execution time")
		}},
		{"empty object", http.StatusOK, `{}`, func(t *testing.T, err error) {
			assert.ErrorIs(t, err, ErrUnexpectedBody)
		}},
		{"ok without result", http.StatusOK, `{"ok":true}`, func(t *testing.T, err error) {
			assert.ErrorIs(t, err, ErrUnexpectedBody)
		}},
		{"ok with null result", http.StatusOK, `{"ok":true,"result":null}`, func(t *testing.T, err error) {
			assert.ErrorIs(t, err, ErrUnexpectedBody)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, nil).FetchSchedule(context.Background(), model.DateRange{})
			require.Error(t, err)
			tc.check(t, err)
		})
	}
}

func TestFetchScheduleWithStudentsToleratesStudentFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("sheet") == "students" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = io.WriteString(w, `[{"Date":"2025-09-15","Time":"13:00","StudentCode":"S1"}]`)
	}))
	defer srv.Close()

	rows, names, err := NewClient(srv.URL, nil).FetchScheduleWithStudents(context.Background(), model.DateRange{})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Empty(t, names)
}

func TestFetchStudents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"Code":101,"Name":"น้องมิว"},{"Code":"S2","Name":"Beam"},{"Name":"no code"}]`)
	}))
	defer srv.Close()

	names, err := NewClient(srv.URL, nil).FetchStudents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"101": "น้องมิว", "S2": "Beam"}, names)
}

func TestPostSendsFormAndAcceptsOK(t *testing.T) {
	var got url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		got = r.PostForm
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	err := NewClient(srv.URL, nil).Post(context.Background(), url.Values{
		"action":      {"leave"},
		"date":        {"2025-09-15"},
		"time":        {"13:00 - 14:00"},
		"teacher":     {"ครูโทน"},
		"studentCode": {"S1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "leave", got.Get("action"))
	assert.Equal(t, "13:00 - 14:00", got.Get("time"))
	assert.Equal(t, "ครูโทน", got.Get("teacher"))
}

func TestPostFailurePaths(t *testing.T) {
	long := strings.Repeat("x", 400)
	cases := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{"status 500 truncates body", http.StatusInternalServerError, long, func(t *testing.T, err error) {
			var he *HTTPError
			require.ErrorAs(t, err, &he)
			assert.Equal(t, 500, he.Status)
			assert.Len(t, he.Body, maxErrorBody)
			assert.True(t, strings.HasPrefix(err.Error(), "HTTP 500 - xxx"))
		}},
		{"ok false", http.StatusOK, `{"ok":false,"error":"slot taken"}`, func(t *testing.T, err error) {
			assert.EqualError(t, err, "slot taken")
		}},
		{"ok false without reason", http.StatusOK, `{"ok":false}`, func(t *testing.T, err error) {
			assert.EqualError(t, err, "server returned failure")
		}},
		{"opaque text", http.StatusOK, "Done!", func(t *testing.T, err error) {
			assert.True(t, errors.Is(err, ErrUnexpectedBody))
		}},
		{"missing ok flag", http.StatusOK, `{"result":"saved"}`, func(t *testing.T, err error) {
			assert.True(t, errors.Is(err, ErrUnexpectedBody))
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}))
			defer srv.Close()

			err := NewClient(srv.URL, nil).Post(context.Background(), url.Values{"action": {"addBooking"}})
			require.Error(t, err)
			tc.check(t, err)
		})
	}
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://script.google.com/...(redacted)", redactURL("https://script.google.com/macros/s/AKfy/exec"))
	assert.Equal(t, "api://...(redacted)", redactURL("not a url"))
}
