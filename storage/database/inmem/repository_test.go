package inmemdb_test

import (
	"testing"

	"github.com/trezcool/entrykart/tests"
)

func TestRepositories(t *testing.T) {
	testutil.RunRepositoryTests(t, func(t *testing.T) testutil.Repos {
		_, repos := testutil.InMemRepos()
		return repos
	})
}
