package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"
	"kbsearch/internal/domain"
)

var (
	bucketArticles   = []byte("articles")
	bucketEmbeddings = []byte("embeddings")
	bucketChats      = []byte("chats")
	bucketMeta       = []byte("meta")
)

// BoltStore keeps articles, their embedding blobs and the chat log in one
// bbolt file. An article and its embedding share a key in separate buckets so
// an upsert that changes the text drops the stale vector in the same
// transaction. bbolt iterates keys in byte order, so each article also carries
// the sequence it was first inserted with and reads sort on it.
type BoltStore struct {
	db  *bbolt.DB
	dim int
}

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketArticles, bucketEmbeddings, bucketChats, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

type articleMeta struct {
	Title       string `json:"title"`
	Content     string `json:"content"`
	URL         string `json:"url"`
	LastUpdated int64  `json:"last_updated,omitempty"`
	Seq         uint64 `json:"seq,omitempty"`
}

func encodeArticle(a domain.Article, seq uint64) ([]byte, error) {
	meta := articleMeta{
		Title:   a.Title,
		Content: a.Content,
		URL:     a.URL,
		Seq:     seq,
	}
	if !a.LastUpdated.IsZero() {
		meta.LastUpdated = a.LastUpdated.UnixNano()
	}
	return json.Marshal(meta)
}

func decodeArticle(id string, data []byte) (domain.Article, error) {
	a, _, err := decodeArticleSeq(id, data)
	return a, err
}

func decodeArticleSeq(id string, data []byte) (domain.Article, uint64, error) {
	var meta articleMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return domain.Article{}, 0, fmt.Errorf("corrupt article %s: %w", id, err)
	}
	a := domain.Article{
		ID:      id,
		Title:   meta.Title,
		Content: meta.Content,
		URL:     meta.URL,
	}
	if meta.LastUpdated != 0 {
		a.LastUpdated = time.Unix(0, meta.LastUpdated).UTC()
	}
	return a, meta.Seq, nil
}

func (s *BoltStore) Upsert(ctx context.Context, article domain.Article) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if article.ID == "" {
		return fmt.Errorf("article id is empty")
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		key := []byte(article.ID)
		articles := tx.Bucket(bucketArticles)

		var seq uint64
		if existing := articles.Get(key); existing != nil {
			prev, prevSeq, err := decodeArticleSeq(article.ID, existing)
			if err != nil || !prev.SameText(article) {
				if err := tx.Bucket(bucketEmbeddings).Delete(key); err != nil {
					return err
				}
			}
			seq = prevSeq
		}
		if seq == 0 {
			next, err := articles.NextSequence()
			if err != nil {
				return err
			}
			seq = next
		}

		data, err := encodeArticle(article, seq)
		if err != nil {
			return err
		}
		return articles.Put(key, data)
	})
}

func (s *BoltStore) GetArticle(ctx context.Context, id string) (domain.Article, error) {
	if err := ctx.Err(); err != nil {
		return domain.Article{}, err
	}
	var article domain.Article
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketArticles).Get([]byte(id))
		if data == nil {
			return domain.NotFoundError(id)
		}
		var err error
		article, err = decodeArticle(id, data)
		return err
	})
	return article, err
}

func (s *BoltStore) SetEmbedding(ctx context.Context, id string, vector []float32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkDimension(s.dim, vector); err != nil {
		return fmt.Errorf("article %s: %w", id, err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		key := []byte(id)
		if tx.Bucket(bucketArticles).Get(key) == nil {
			return domain.NotFoundError(id)
		}
		return tx.Bucket(bucketEmbeddings).Put(key, EncodeVector(vector))
	})
}

func (s *BoltStore) AllWithEmbeddings(ctx context.Context) ([]domain.EmbeddedArticle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var items []domain.EmbeddedArticle
	var seqs []uint64
	err := s.db.View(func(tx *bbolt.Tx) error {
		articles := tx.Bucket(bucketArticles)
		return tx.Bucket(bucketEmbeddings).ForEach(func(k, v []byte) error {
			data := articles.Get(k)
			if data == nil {
				return nil
			}
			article, seq, err := decodeArticleSeq(string(k), data)
			if err != nil {
				return err
			}
			vec, err := DecodeVector(v, s.dim)
			if err != nil {
				return fmt.Errorf("article %s: %w", k, err)
			}
			items = append(items, domain.EmbeddedArticle{Article: article, Vector: vec})
			seqs = append(seqs, seq)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Stable(bySeq{items: items, seqs: seqs})
	return items, nil
}

// bySeq orders articles by insertion sequence. Records written before the
// sequence existed have seq 0 and keep their key order ahead of the rest.
type bySeq struct {
	items []domain.EmbeddedArticle
	seqs  []uint64
}

func (b bySeq) Len() int           { return len(b.items) }
func (b bySeq) Less(i, j int) bool { return b.seqs[i] < b.seqs[j] }
func (b bySeq) Swap(i, j int) {
	b.items[i], b.items[j] = b.items[j], b.items[i]
	b.seqs[i], b.seqs[j] = b.seqs[j], b.seqs[i]
}

func (s *BoltStore) CountArticles(ctx context.Context) (int, error) {
	return s.count(ctx, bucketArticles)
}

func (s *BoltStore) CountEmbedded(ctx context.Context) (int, error) {
	return s.count(ctx, bucketEmbeddings)
}

func (s *BoltStore) CountChats(ctx context.Context) (int, error) {
	return s.count(ctx, bucketChats)
}

func (s *BoltStore) count(ctx context.Context, bucket []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucket).Stats().KeyN
		return nil
	})
	return n, err
}

func (s *BoltStore) AppendChat(ctx context.Context, record domain.ChatRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketChats)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return b.Put(key, data)
	})
}

// RecentChats returns up to limit of the newest chat records, oldest first.
// A limit of zero or less returns the whole log.
func (s *BoltStore) RecentChats(ctx context.Context, limit int) ([]domain.ChatRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var records []domain.ChatRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketChats).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(records) == limit {
				break
			}
			var rec domain.ChatRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("corrupt chat record %d: %w", binary.BigEndian.Uint64(k), err)
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

func (s *BoltStore) clearEmbeddings() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketEmbeddings); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketEmbeddings)
		return err
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
