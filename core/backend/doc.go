/*
Package backend implements the configurable table administration backend

A backend manages a Postgres-SQL database and provides an auto-generated RESTful-API for it.

Configuration

The configuration is done entirely via JSON. It consists of roles and tables.

Example:
  {
	"roles": {
	  "member": {"inherits": ["public"]},
	  "admin":  {"inherits": ["member"]}
	},
	"tables": [
	  {
		"name": "author",
		"fields": {
		  "name": {"type": "text"}
		},
		"display_fields": ["name"],
		"grant": {
		  "public": ["read"],
		  "admin":  ["read", "create", "update", "delete", "publish"]
		},
		"publishable_to": ["public", "member"]
	  },
	  {
		"name": "article",
		"fields": {
		  "title":  {"type": "text", "orderable": true},
		  "author": {"type": "text", "relation": "author", "array_name": "articles",
		             "relationship_strength": "Strong"}
		},
		"display_fields": ["title"],
		"grant": {
		  "public": ["read"],
		  "admin":  ["read", "create", "update", "delete", "publish"]
		}
	  }
	]
  }

The example creates two tables. Roles form a hierarchy through inheritance, the
implicit role "public" is the root every caller holds. Grants give roles
capabilities on a table, individual fields can carry their own grants. The
field "author" on the article table declares a relation to the author table;
the backend derives the reverse one-to-many relation "articles" on the author
table from it automatically.

This configuration creates the following REST routes:
	GET /tables/author
	POST /tables/author
	GET /tables/author/{id}
	PUT /tables/author/{id}
	DELETE /tables/author/{id}
	POST /tables/author/{id}/publish
	GET /schema/author
	GET /tables/article
	POST /tables/article
	GET /tables/article/{id}
	PUT /tables/article/{id}
	DELETE /tables/article/{id}
	POST /tables/article/{id}/publish
	GET /schema/article

Every row carries a granted state controlling its row-level visibility: a
draft is visible to its owner only, a shared row follows the table grants, and
a row published to a role is visible to that role and every role inheriting
from it. Queries load related rows alongside each row, filtered to what the
caller may see; a related row the caller may not see is silently omitted,
never an error.
*/
package backend
