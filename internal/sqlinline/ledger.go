package sqlinline

const QNextProjectID = `--sql 08b7ccca-a55b-40b4-8749-3052459d1d4b
update ledger_counters set value = value + 1
where name = 'projects'
returning value;
`

const QInsertProject = `--sql 0df5a2c5-cb05-4eb4-bf35-fc5918b2be6b
insert into projects(id, creator, title, description, image, detail_images, goal_amount, deadline,
                     expert_review_requested, status, total_donated, escrow_balance, created_at)
values ($1::bigint, $2::text, $3::text, $4::text, $5::text, $6::text[], $7::bigint, $8::timestamptz,
        $9::boolean, $10::smallint, 0, 0, $11::timestamptz);
`

const QGetProject = `--sql 874cc742-8338-459a-963b-ce521ede4f3d
select id, creator, title, description, image, detail_images, goal_amount, deadline,
       expert_review_requested, status, total_donated, escrow_balance, created_at, finalized_at
from projects
where id = $1::bigint;
`

const QLockProject = `--sql 845928f3-7b44-43ab-94dd-cfef1f79716c
select id, creator, title, description, image, detail_images, goal_amount, deadline,
       expert_review_requested, status, total_donated, escrow_balance, created_at, finalized_at
from projects
where id = $1::bigint
for update nowait;
`

const QCountProjects = `--sql c4249fd9-2651-455f-9a36-40d74c3414a3
select value from ledger_counters where name = 'projects';
`

const QListProjects = `--sql be20711e-56b7-4a40-a351-caa000b16d72
select id, creator, title, description, image, detail_images, goal_amount, deadline,
       expert_review_requested, status, total_donated, escrow_balance, created_at, finalized_at
from projects
where id > $1::bigint
  and ($2::smallint = 0 or status = $2::smallint)
  and ($3::timestamptz is null or (status = 1 and deadline > $3::timestamptz))
  and ($4::timestamptz is null or deadline <= $4::timestamptz)
order by id asc
limit $5::int;
`

const QUpdateProjectStatus = `--sql b1ec44c6-541d-4d4f-9789-f865d5df8493
update projects
set status = $3::smallint, finalized_at = $4::timestamptz
where id = $1::bigint and status = $2::smallint;
`

const QProjectStatusCounts = `--sql 09d27f65-5d2d-4b4f-9a11-a94cb0722d57
select status, count(*), coalesce(sum(escrow_balance), 0)::bigint
from projects
group by status;
`

const QAccountsTotal = `--sql 94871580-e3ed-4e67-8693-e92a197f1e96
select coalesce(sum(balance), 0)::bigint from accounts;
`

const QUpsertContribution = `--sql 32bd5921-ddf2-46e5-9be9-35864ec165f3
insert into contributions(project_id, donor, amount, first_donated_at, updated_at)
values ($1::bigint, $2::text, $3::bigint, $4::timestamptz, $4::timestamptz)
on conflict (project_id, donor) do update
set amount = contributions.amount + excluded.amount,
    updated_at = excluded.updated_at
returning amount;
`

const QCreditProjectEscrow = `--sql f342445d-88b8-4777-b7f7-22fcb8986a97
update projects
set total_donated = total_donated + $2::bigint,
    escrow_balance = escrow_balance + $2::bigint
where id = $1::bigint
returning total_donated, escrow_balance;
`

const QGetContribution = `--sql 47a5a3ff-2ade-436f-8a92-ae86a0a5b70c
select amount from contributions
where project_id = $1::bigint and donor = $2::text;
`

const QListContributions = `--sql 806fb901-67b2-41be-b4e5-449f0b32337a
select project_id, donor, amount, first_donated_at, updated_at
from contributions
where project_id = $1::bigint
order by seq asc;
`

const QZeroContribution = `--sql 10e28a8b-4d1d-4c9d-a2f8-0f3a4cd181dc
update contributions
set amount = 0, updated_at = $3::timestamptz
where project_id = $1::bigint and donor = $2::text;
`

const QDebitProjectEscrow = `--sql 24de44d5-52ff-4a09-8ed8-578551315edb
update projects
set total_donated = total_donated - $2::bigint,
    escrow_balance = escrow_balance - $2::bigint
where id = $1::bigint;
`

const QReleaseEscrow = `--sql e0464170-8e25-4d98-8899-4af18384ca29
update projects p
set escrow_balance = 0
from (select escrow_balance from projects where id = $1::bigint) prev
where p.id = $1::bigint
returning prev.escrow_balance;
`

const QCreditAccount = `--sql acef82ec-2e2e-4e29-a42f-5a23652e5ace
insert into accounts(account, balance, updated_at)
values ($1::text, $2::bigint, $3::timestamptz)
on conflict (account) do update
set balance = accounts.balance + excluded.balance,
    updated_at = excluded.updated_at
returning balance;
`

const QGetAccountBalance = `--sql 831cdf61-3925-42c2-a4f8-d1d5091f8429
select balance from accounts where account = $1::text;
`

const QInsertLedgerEntry = `--sql 448728a6-a46f-448d-a4f8-7690a62b3fb2
insert into ledger_entries(id, project_id, kind, account, amount, country, created_at)
values ($1::uuid, $2::bigint, $3::text, $4::text, $5::bigint, $6::text, $7::timestamptz);
`

const QListLedgerEntries = `--sql a3304791-d24f-4a71-bf3b-0ecb7e905666
select id::text, project_id, kind, account, amount, country, created_at
from ledger_entries
where project_id = $1::bigint
order by seq asc;
`

const QInsertReviewWindow = `--sql ed86d6ce-ac47-492f-a417-3c7153272949
insert into review_windows(project_id, voting_deadline, enabled_at)
values ($1::bigint, $2::timestamptz, $3::timestamptz);
`

const QGetReviewWindow = `--sql ad81f120-c893-4b20-96d5-e8671169aa8d
select project_id, voting_deadline, positive_count, negative_count, enabled_at
from review_windows
where project_id = $1::bigint;
`

const QInsertReviewVote = `--sql d3b55b17-af7d-4b7e-b72c-ab6e21e10a9a
insert into review_votes(project_id, reviewer, is_positive, comment, submitted_at)
values ($1::bigint, $2::text, $3::boolean, $4::text, $5::timestamptz);
`

const QBumpReviewTally = `--sql a6f9f7c8-7428-4b81-99eb-9993e4226847
update review_windows
set positive_count = positive_count + case when $2::boolean then 1 else 0 end,
    negative_count = negative_count + case when $2::boolean then 0 else 1 end
where project_id = $1::bigint;
`

const QGetReviewVote = `--sql 287a3a47-588a-48fd-913d-fb148f8ff543
select project_id, reviewer, is_positive, comment, submitted_at
from review_votes
where project_id = $1::bigint and reviewer = $2::text;
`

const QListReviewVotes = `--sql fe2cc0fd-4fae-404c-aeff-6ce06c323231
select project_id, reviewer, is_positive, comment, submitted_at
from review_votes
where project_id = $1::bigint
order by seq asc;
`

const QEnsureSchemaMigrations = `--sql f430abdd-7dd4-4d92-866b-fb9c0a11dd91
create table if not exists schema_migrations (
    name text primary key,
    applied_at timestamptz not null default now()
);
`

const QLockSchemaMigrations = `--sql 56064b94-b016-4947-87d9-25bdd5b1a936
select pg_advisory_xact_lock(hashtext('dfund.schema_migrations'));
`

const QMigrationApplied = `--sql 08de2f01-ce53-4b9c-9a26-96766f1b93e9
select exists(select 1 from schema_migrations where name = $1::text);
`

const QRecordMigration = `--sql 515b6e00-1442-436f-bd41-23651654b368
insert into schema_migrations(name) values ($1::text);
`

// MigrationMarker prefixes embedded migration bodies so they run through the marked runner.
const MigrationMarker = "--sql 9c1f3b7e-52d4-4a8e-b0c6-7e2d41a6f583\n"
