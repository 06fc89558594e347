package graph

var schemaStatements = []string{
	`CREATE CONSTRAINT item_id_unique IF NOT EXISTS FOR (i:Item) REQUIRE i.id IS UNIQUE`,
	`CREATE CONSTRAINT domain_name_unique IF NOT EXISTS FOR (d:Domain) REQUIRE d.name IS UNIQUE`,
	`CREATE CONSTRAINT category_name_unique IF NOT EXISTS FOR (c:Category) REQUIRE c.name IS UNIQUE`,
	`CREATE CONSTRAINT tag_name_unique IF NOT EXISTS FOR (t:Tag) REQUIRE t.name IS UNIQUE`,
}

// Every write is MERGE-based so replaying a projection converges.
const (
	cyMergeItem = `
MERGE (i:Item {id: $id})
SET i.title = $title, i.url = $url`

	cyDropStaleDomain = `
MATCH (i:Item {id: $id})-[r:BELONGS_TO]->(d:Domain)
WHERE d.name <> $domain
DELETE r`

	cyLinkDomain = `
MATCH (i:Item {id: $id})
MERGE (d:Domain {name: $domain})
MERGE (i)-[:BELONGS_TO]->(d)`

	cyDropStaleCategory = `
MATCH (i:Item {id: $id})-[r:IN_CATEGORY]->(c:Category)
WHERE c.name <> $category
DELETE r`

	cyLinkCategory = `
MATCH (i:Item {id: $id})
MERGE (c:Category {name: $category})
MERGE (i)-[:IN_CATEGORY]->(c)`

	cyDropStaleTags = `
MATCH (i:Item {id: $id})-[r:HAS_TAG]->(t:Tag)
WHERE NOT t.name IN $tags
DELETE r`

	cyLinkTags = `
MATCH (i:Item {id: $id})
UNWIND $tags AS name
MERGE (t:Tag {name: name})
MERGE (i)-[:HAS_TAG]->(t)`

	cyMoveCategory = `
MATCH (i:Item)-[r:IN_CATEGORY]->(:Category {name: $old})
MERGE (n:Category {name: $new})
MERGE (i)-[:IN_CATEGORY]->(n)
DELETE r`

	cyDeleteCategory = `
MATCH (c:Category {name: $old})
DETACH DELETE c`

	cyMoveTag = `
MATCH (i:Item)-[r:HAS_TAG]->(:Tag {name: $src})
MERGE (d:Tag {name: $dst})
MERGE (i)-[:HAS_TAG]->(d)
DELETE r`

	cyDeleteTag = `
MATCH (s:Tag {name: $src})
DETACH DELETE s`

	cyGraph = `
MATCH (i:Item)-[:BELONGS_TO]->(d:Domain)
OPTIONAL MATCH (i)-[:IN_CATEGORY]->(c:Category)
WITH i, d, c
WHERE ($domain = '' OR d.name = $domain)
  AND ($category = '' OR c.name = $category)
  AND ($tag = '' OR EXISTS { MATCH (i)-[:HAS_TAG]->(:Tag {name: $tag}) })
RETURN i.id AS id, i.title AS title, d.name AS domain, c.name AS category
ORDER BY i.id DESC
LIMIT $limit`
)
