package mysql

import (
	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

var Db *sqlx.DB

// Init 初始化MySQL连接
func Init(dsn string, maxOpen, maxIdle int) (err error) {
	// "user:password@tcp(host:port)/dbname"
	Db, err = sqlx.Connect("mysql", dsn)
	if err != nil {
		return
	}
	Db.SetMaxOpenConns(maxOpen)
	Db.SetMaxIdleConns(maxIdle)
	return
}

// Close 关闭MySQL连接
func Close() {
	_ = Db.Close()
}
