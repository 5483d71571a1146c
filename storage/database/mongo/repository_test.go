package mongorepos_test

import (
	"testing"

	"github.com/trezcool/entrykart/tests"
)

// Requires TEST_MONGO_URI, e.g. mongodb://localhost:27017
func TestRepositories(t *testing.T) {
	testutil.RunRepositoryTests(t, testutil.MongoRepos)
}
