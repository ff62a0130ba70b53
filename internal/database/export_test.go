package database

var SplitStatementsForTest = splitStatements
